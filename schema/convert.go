package schema

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
)

// ErrOutOfRange is returned when a driver value does not fit the column's Go type.
var ErrOutOfRange = errors.New("value out of range")

// SQLite text timestamps cast does not recognise.
var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04",
	"2006-01-02T15:04",
}

// Coerce converts a raw driver value into the Go type of kind: string,
// int64, float64, decimal.Decimal, bool, []byte or time.Time. NULL stays nil.
// Time text that matches no known layout is kept as a string.
func Coerce(kind Kind, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}

	switch kind {
	case KindInt:
		return toInt64(v)
	case KindFloat:
		f, err := cast.ToFloat64E(text(v))
		if err != nil {
			return nil, err
		}
		return f, nil
	case KindDecimal:
		return toDecimal(v)
	case KindBool:
		return toBool(v)
	case KindBit:
		return toBits(v)
	case KindBytes:
		switch x := v.(type) {
		case []byte:
			return append([]byte(nil), x...), nil
		case string:
			return []byte(x), nil
		default:
			return nil, fmt.Errorf("cannot convert %T to bytes", v)
		}
	case KindTime:
		return toTime(v), nil
	default:
		switch x := v.(type) {
		case []byte:
			return string(x), nil
		case time.Time:
			return x.Format(time.RFC3339Nano), nil
		}
		if s, err := cast.ToStringE(v); err == nil {
			return s, nil
		}
		return fmt.Sprint(v), nil
	}
}

// text turns driver bytes into a string so cast can parse them.
func text(v interface{}) interface{} {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// toInt64 parses driver text in base 10, so ZEROFILL values such as
// "00042" are not read as octal.
func toInt64(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case uint64:
		if x > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrOutOfRange, x)
		}
	case uint:
		if uint64(x) > math.MaxInt64 {
			return nil, fmt.Errorf("%w: %d overflows int64", ErrOutOfRange, x)
		}
	case []byte:
		return parseInt(string(x))
	case string:
		return parseInt(x)
	}

	n, err := cast.ToInt64E(v)
	if err != nil {
		return nil, err
	}
	return n, nil
}

func parseInt(s string) (interface{}, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if errors.Is(err, strconv.ErrRange) {
		return nil, fmt.Errorf("%w: %s overflows int64", ErrOutOfRange, s)
	}
	if err != nil {
		return nil, err
	}
	return n, nil
}

// toDecimal keeps DECIMAL/NUMERIC values exact; drivers hand them over as text.
func toDecimal(v interface{}) (interface{}, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case decimal.Decimal:
		return x, nil
	case []byte:
		d, err = decimal.NewFromString(strings.TrimSpace(string(x)))
	case string:
		d, err = decimal.NewFromString(strings.TrimSpace(x))
	case float64:
		d = decimal.NewFromFloat(x)
	case float32:
		d = decimal.NewFromFloat32(x)
	case uint64:
		d, err = decimal.NewFromString(strconv.FormatUint(x, 10))
	default:
		var n int64
		n, err = cast.ToInt64E(v)
		d = decimal.NewFromInt(n)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot convert %v to decimal: %w", v, err)
	}
	return d, nil
}

// toBool accepts MySQL's single raw byte for BIT(1) as well as text and
// integer booleans.
func toBool(v interface{}) (interface{}, error) {
	if b, ok := v.([]byte); ok {
		if len(b) == 1 && b[0] <= 1 {
			return b[0] == 1, nil
		}
		v = string(b)
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// toBits decodes MySQL's big-endian BIT(n) bytes into an int64.
func toBits(v interface{}) (interface{}, error) {
	b, ok := v.([]byte)
	if !ok {
		return toInt64(v)
	}
	if len(b) > 8 {
		return nil, fmt.Errorf("%w: %d byte bit value", ErrOutOfRange, len(b))
	}
	var n uint64
	for _, octet := range b {
		n = n<<8 | uint64(octet)
	}
	if n > math.MaxInt64 {
		return nil, fmt.Errorf("%w: bit value %#x overflows int64", ErrOutOfRange, n)
	}
	return int64(n), nil
}

func toTime(v interface{}) interface{} {
	if t, ok := v.(time.Time); ok {
		return t
	}
	v = text(v)
	if t, err := cast.ToTimeInDefaultLocationE(v, time.UTC); err == nil {
		return t.UTC()
	}
	s, ok := v.(string)
	if !ok {
		return v
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return s
}
