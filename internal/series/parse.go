package series

import (
	"bytes"
	"errors"
	"math"
	"strconv"
	"strings"
)

// ErrConversion matches every *ConversionError via errors.Is.
var ErrConversion = errors.New("record is not a number")

var (
	errNotFinite  = errors.New("value is not finite")
	errNotDecimal = errors.New("not a decimal number")
)

// ConversionError reports a record that could not be turned into a
// sample. The stream continues past it.
type ConversionError struct {
	Record string
	Err    error
}

func (e *ConversionError) Error() string {
	return "convert " + strconv.Quote(e.Record) + ": " + e.Err.Error()
}

func (e *ConversionError) Unwrap() error { return e.Err }

func (e *ConversionError) Is(target error) bool { return target == ErrConversion }

// Parse converts a trimmed record to a float using '.' as the decimal
// separator regardless of locale. Hex floats, digit separators, NaN,
// infinities and out-of-range values are rejected.
func Parse(record []byte) (float64, error) {
	text := string(bytes.TrimSpace(record))
	if !isDecimal(text) {
		return 0, &ConversionError{Record: text, Err: errNotDecimal}
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) {
			err = numErr.Err
		}
		return 0, &ConversionError{Record: text, Err: err}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &ConversionError{Record: text, Err: errNotFinite}
	}
	return v, nil
}

// isDecimal filters out the non-decimal forms strconv.ParseFloat accepts.
func isDecimal(text string) bool {
	if strings.ContainsRune(text, '_') {
		return false
	}
	digits := strings.TrimLeft(text, "+-")
	return !strings.HasPrefix(digits, "0x") && !strings.HasPrefix(digits, "0X")
}
