package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/kikundi/core"
	"github.com/trezcool/kikundi/core/feedback"
)

var orderingParam = "ordering"

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}

	for _, field := range strings.Split(val, ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// bindSeverities reads `severity` (repeated or comma separated). Unknown labels are a field error.
func bindSeverities(ctx echo.Context) ([]feedback.Severity, error) {
	var sevs []feedback.Severity
	for _, raw := range ctx.QueryParams()["severity"] {
		for _, label := range strings.Split(raw, ",") {
			if strings.TrimSpace(label) == "" {
				continue
			}
			sev, ok := feedback.ParseSeverity(label)
			if !ok {
				return nil, core.NewFieldError("severity", "unknown severity "+strconv.Quote(label))
			}
			sevs = append(sevs, sev)
		}
	}
	return sevs, nil
}

func bindBool(ctx echo.Context, name string) bool {
	b, _ := strconv.ParseBool(ctx.QueryParam(name))
	return b
}

func bindInt(ctx echo.Context, name string, fallback int) int {
	i, err := strconv.Atoi(ctx.QueryParam(name))
	if err != nil {
		return fallback
	}
	return i
}
