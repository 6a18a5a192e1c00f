// Package formulas wraps go-talib indicators and gonum statistics behind
// nil-on-insufficient-data helpers.
package formulas
