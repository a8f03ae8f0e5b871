// Package report renders printable price sheets.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/phpdave11/gofpdf"

	"github.com/agromarket/price-tracker/internal/analytics"
)

// column widths in mm, A4 portrait minus margins
var (
	headers = []string{"Commodity", "Unit", "Market", "Price", "Updated"}
	widths  = []float64{55, 25, 50, 30, 30}
)

// LatestSheet writes a PDF of the latest prices, one section per category.
// Prices are rounded to two decimals here and nowhere else.
func LatestSheet(w io.Writer, title string, generatedAt time.Time, groups []analytics.CategoryGroup) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, tr(title))
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, "Generated "+generatedAt.UTC().Format("2006-01-02 15:04 UTC"))
	pdf.Ln(10)

	if len(groups) == 0 {
		pdf.SetFont("Arial", "", 12)
		pdf.Cell(0, 10, "No prices have been reported yet.")
	}

	for _, g := range groups {
		pdf.SetFont("Arial", "B", 12)
		pdf.Cell(0, 8, tr(g.Category))
		pdf.Ln(8)

		pdf.SetFont("Arial", "B", 9)
		pdf.SetFillColor(230, 236, 230)
		for i, h := range headers {
			align := "L"
			if h == "Price" {
				align = "R"
			}
			pdf.CellFormat(widths[i], 7, h, "1", 0, align, true, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont("Arial", "", 9)
		for _, p := range g.Prices {
			pdf.CellFormat(widths[0], 6, tr(p.CommodityName), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[1], 6, tr(p.CommodityUnit), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[2], 6, tr(p.MarketName), "1", 0, "L", false, 0, "")
			pdf.CellFormat(widths[3], 6, p.Price.StringFixed(2), "1", 0, "R", false, 0, "")
			pdf.CellFormat(widths[4], 6, p.DateSubmitted.UTC().Format("2006-01-02"), "1", 0, "L", false, 0, "")
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}

	return pdf.Output(w)
}
