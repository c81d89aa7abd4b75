package runtime

import (
	"html"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
)

// FrameHTML renders df as an HTML table with a leading row-index column.
func FrameHTML(df dataframe.DataFrame) string {
	names := df.Names()
	cols := make([]series.Series, len(names))
	for i, n := range names {
		cols[i] = df.Col(n)
	}
	return tableHTML(names, cols, df.Nrow())
}

// SeriesHTML renders s as a one-column HTML table.
func SeriesHTML(s series.Series) string {
	name := s.Name
	if name == "" {
		name = "0"
	}
	return tableHTML([]string{name}, []series.Series{s}, s.Len())
}

func tableHTML(names []string, cols []series.Series, rows int) string {
	var sb strings.Builder
	sb.WriteString(`<table border="1" class="dataframe">`)
	sb.WriteString("<thead><tr><th></th>")
	for _, n := range names {
		sb.WriteString("<th>")
		sb.WriteString(html.EscapeString(n))
		sb.WriteString("</th>")
	}
	sb.WriteString("</tr></thead><tbody>")
	for r := range rows {
		sb.WriteString("<tr><th>")
		sb.WriteString(strconv.Itoa(r))
		sb.WriteString("</th>")
		for _, c := range cols {
			sb.WriteString("<td>")
			sb.WriteString(html.EscapeString(cellText(c.Elem(r))))
			sb.WriteString("</td>")
		}
		sb.WriteString("</tr>")
	}
	sb.WriteString("</tbody></table>")
	return sb.String()
}

func cellText(el series.Element) string {
	if isMissing(el) {
		return "NaN"
	}
	if el.Type() == series.Float {
		return strconv.FormatFloat(el.Float(), 'f', -1, 64)
	}
	return el.String()
}
