package sql

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
)

// TypeError is returned by Render when a bind value cannot be rendered
// as a SQL literal. It signals a programming error in the caller's
// parameter construction and names the offending runtime type.
type TypeError struct {
	Value any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("sql: cannot render parameter of type %T as a literal", e.Value)
}

// Render returns the accumulated text with every positional placeholder
// replaced, left to right, by the literal form of the corresponding
// parameter. It is a debug rendering only: the output must never be
// executed against the engine. If placeholders outnumber parameters the
// remaining ones are left as literal "?" (rendering is best-effort for
// partially bound builders); an unsupported parameter type fails with a
// *TypeError rather than misrendering silently.
func (b *Builder) Render() (string, error) {
	parts := strings.Split(b.text, "?")
	if len(parts) == 1 {
		return b.text, nil
	}
	var sb strings.Builder
	sb.WriteString(parts[0])
	for i, part := range parts[1:] {
		if i < len(b.args) {
			lit, err := literal(b.args[i])
			if err != nil {
				return "", err
			}
			sb.WriteString(lit)
		} else {
			sb.WriteString("?")
		}
		sb.WriteString(part)
	}
	return sb.String(), nil
}

// String renders the builder for debug display. It panics with a
// *TypeError on an unrenderable parameter; use Render to handle the
// error explicitly.
func (b *Builder) String() string {
	s, err := b.Render()
	if err != nil {
		panic(err)
	}
	return s
}

// Log passes the debug rendering to each sink (default: slog) and
// returns the builder for chaining.
func (b *Builder) Log(sinks ...func(string)) *Builder {
	s := b.String()
	if len(sinks) == 0 {
		slog.Info("statement", "sql", s)
		return b
	}
	for _, sink := range sinks {
		sink(s)
	}
	return b
}

// literal formats a single bind value as a SQL literal. Strings are
// single-quoted with internal quotes doubled; this is display-grade
// escaping only, not an injection guarantee.
func literal(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", nil
	case []byte:
		return "X'" + hex.EncodeToString(v) + "'", nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case *big.Int:
		return v.String(), nil
	case big.Int:
		return v.String(), nil
	default:
		return "", &TypeError{Value: v}
	}
}
