// ABOUTME: Renders the sales report PDF from already-fetched orders.
// ABOUTME: Every page carries the business header and a "Page N of M" footer.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"

	"github.com/design2deploy2025/inventory-management-sub000/dashboard"
)

// Title is printed under the business name on every page.
const Title = "Sales report"

// Data is everything the PDF shows. It is assembled client side; building
// the report never talks to the backend.
type Data struct {
	Business    string
	Contact     string
	Generated   time.Time
	Summaries   []dashboard.Summary
	BestSellers []dashboard.BestSeller
	Products    int
	StockValue  decimal.Decimal
}

// Collect derives report data from the current snapshots. limit caps the
// best seller table; zero or less keeps every product.
func Collect(orders []dashboard.Order, products []dashboard.Product, profile dashboard.Profile, now time.Time, limit int) Data {
	d := Data{
		Business:    strings.TrimSpace(profile.BusinessName),
		Contact:     contactLine(profile),
		Generated:   now,
		BestSellers: dashboard.BestSellers(orders, limit),
		Products:    len(products),
		StockValue:  decimal.Zero,
	}
	if d.Business == "" {
		d.Business = "My shop"
	}
	for _, b := range dashboard.Buckets(now) {
		d.Summaries = append(d.Summaries, dashboard.Summarize(orders, b))
	}
	for _, p := range products {
		d.StockValue = d.StockValue.Add(p.StockValue())
	}
	return d
}

func contactLine(p dashboard.Profile) string {
	var parts []string
	for _, s := range []string{p.Email, p.Phone, p.Instagram} {
		if s = strings.TrimSpace(s); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "  |  ")
}

type column struct {
	title string
	width float64
	align string
}

var summaryColumns = []column{
	{"Period", 50, "L"},
	{"Orders", 25, "R"},
	{"Revenue", 35, "R"},
	{"Paid", 35, "R"},
	{"Average", 35, "R"},
}

var bestSellerColumns = []column{
	{"#", 12, "R"},
	{"Product", 98, "L"},
	{"Qty", 30, "R"},
	{"Revenue", 40, "R"},
}

const rowHeight = 7

// Build lays out the report. Layout errors are reported by pdf.Error and
// surface from Output.
func Build(d Data) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(d.Business+" "+Title, true)
	pdf.SetCreator("sellerdesk", true)
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(false, 20)
	pdf.AliasNbPages("")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 7, tr(d.Business), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		sub := Title + " - generated " + d.Generated.Format("2 Jan 2006 15:04")
		if d.Contact != "" {
			sub += "  |  " + d.Contact
		}
		pdf.CellFormat(0, 5, tr(sub), "B", 1, "L", false, 0, "")
		pdf.Ln(4)
	})
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()

	section(pdf, "Summary by period")
	rows := make([][]string, 0, len(d.Summaries))
	for _, s := range d.Summaries {
		rows = append(rows, []string{
			s.Bucket.Name,
			strconv.Itoa(s.Orders),
			s.Revenue.StringFixed(2),
			s.PaidRevenue.StringFixed(2),
			s.Average.StringFixed(2),
		})
	}
	table(pdf, tr, summaryColumns, rows)

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, fmt.Sprintf("Catalog: %d products, stock value %s", d.Products, d.StockValue.StringFixed(2)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Best sellers")
	if len(d.BestSellers) == 0 {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.CellFormat(0, rowHeight, "No sales yet.", "", 1, "L", false, 0, "")
		return pdf
	}
	rows = rows[:0]
	for i, b := range d.BestSellers {
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			b.Name,
			strconv.Itoa(b.Quantity),
			b.Revenue.StringFixed(2),
		})
	}
	table(pdf, tr, bestSellerColumns, rows)
	return pdf
}

// WritePDF renders d to w.
func WritePDF(w io.Writer, d Data) error {
	pdf := Build(d)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	return nil
}

func section(pdf *fpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "", 1, "L", false, 0, "")
}

// table draws rows, starting a new page and repeating the header row when
// the next row would run into the bottom margin.
func table(pdf *fpdf.Fpdf, tr func(string) string, cols []column, rows [][]string) {
	_, pageHeight := pdf.GetPageSize()
	_, _, _, bottom := pdf.GetMargins()
	limit := pageHeight - bottom

	header := func() {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(235, 235, 235)
		for _, c := range cols {
			pdf.CellFormat(c.width, rowHeight, c.title, "1", 0, c.align, true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
	}

	if pdf.GetY()+2*rowHeight > limit {
		pdf.AddPage()
	}
	header()
	for _, row := range rows {
		if pdf.GetY()+rowHeight > limit {
			pdf.AddPage()
			header()
		}
		for i, c := range cols {
			pdf.CellFormat(c.width, rowHeight, tr(truncate(row[i], 60)), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
