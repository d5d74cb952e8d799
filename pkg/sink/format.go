package sink

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/TheEntropyCollective/logtree/pkg/event"
)

// FormatValue renders an argument value for human-readable output.
func FormatValue(v event.ArgValue) string {
	switch v.Kind() {
	case event.KindBool:
		b, _ := v.AsBool()
		return strconv.FormatBool(b)
	case event.KindSignedInt:
		i, _ := v.AsInt64()
		return strconv.FormatInt(i, 10)
	case event.KindUnsignedInt:
		u, _ := v.AsUint64()
		return strconv.FormatUint(u, 10)
	case event.KindFloat:
		f, _ := v.AsFloat32()
		return strconv.FormatFloat(float64(f), 'g', -1, 32)
	case event.KindFloatSeconds:
		d, _ := v.AsDuration()
		return FormatReltime(d)
	default:
		s, _ := v.AsString()
		return s
	}
}

// FormatMessage substitutes ${name} placeholders in the message format
// string with the rendered values of the matching arguments. Placeholders
// without a matching argument are kept verbatim.
func FormatMessage(info *event.MessageInfo) string {
	f := info.Format
	if !strings.Contains(f, "${") {
		return f
	}
	var sb strings.Builder
	for {
		i := strings.Index(f, "${")
		if i < 0 {
			sb.WriteString(f)
			return sb.String()
		}
		sb.WriteString(f[:i])
		rest := f[i+2:]
		j := strings.IndexByte(rest, '}')
		if j < 0 {
			sb.WriteString(f[i:])
			return sb.String()
		}
		name := rest[:j]
		if arg, ok := findArgByText(info, name); ok {
			sb.WriteString(FormatValue(arg.Value))
		} else {
			sb.WriteString(f[i : i+2+j+1])
		}
		f = rest[j+1:]
	}
}

func findArgByText(info *event.MessageInfo, name string) (event.MessageArg, bool) {
	for _, a := range info.Args {
		if a.Name.String() == name {
			return a, true
		}
	}
	return event.MessageArg{}, false
}

// FormatReltime renders a duration relative to stream start in a compact
// fixed vocabulary: microseconds below a millisecond, milliseconds below a
// second, then seconds ("1.500s"), minutes and seconds ("2m 5.0s") and hours
// and minutes ("1h 3m").
func FormatReltime(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d == 0:
		return "0"
	case d < time.Millisecond:
		return fmt.Sprintf("%dμs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.3fs", d.Seconds())
	case d < time.Hour:
		m := int(d.Minutes())
		return fmt.Sprintf("%dm %.1fs", m, d.Seconds()-float64(m)*60)
	default:
		h := int(d.Hours())
		m := int(d.Minutes()) - h*60
		return fmt.Sprintf("%dh %dm", h, m)
	}
}

// PaddedTo pads or truncates s to exactly width runes.
func PaddedTo(width int, s string) string {
	n := utf8.RuneCountInString(s)
	if n == width {
		return s
	}
	if n < width {
		return s + strings.Repeat(" ", width-n)
	}
	runes := []rune(s)
	return string(runes[:width-1]) + "…"
}

// FormatInstance renders an instance id for display.
func FormatInstance(instance uint64) string {
	if instance == 0 {
		return "-"
	}
	return fmt.Sprintf("%x", instance)
}
