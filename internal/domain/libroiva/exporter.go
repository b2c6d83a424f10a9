// Package libroiva genera el archivo de ancho fijo de ventas (estilo Libro IVA Digital) a partir de
// facturas ya autorizadas o anuladas. Es una proyección pura: misma entrada, mismos bytes.
package libroiva

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// Tipos de registro.
const (
	RecordHeader  = "1"
	RecordSale    = "2"
	RecordVoided  = "3"
	RecordSummary = "4"
	RecordFooter  = "9"
)

// RecordSeparator separador entre registros (sin separador final).
const RecordSeparator = "\r\n"

const headerDescription = "LIBRO IVA VENTAS"

var (
	ErrInvalidPeriod = errors.New("libroiva: período inválido")
	ErrFieldOverflow = errors.New("libroiva: valor excede el ancho del campo")
)

// Period identifica al emisor y el mes declarado.
type Period struct {
	CUIT  string
	Year  int
	Month int
}

// Code período como YYYYMM.
func (p Period) Code() string {
	return fmt.Sprintf("%04d%02d", p.Year, p.Month)
}

func (p Period) validate() error {
	if len(afip.NormalizeCUIT(p.CUIT)) != afip.CUITLength {
		return fmt.Errorf("%w: CUIT %q", ErrInvalidPeriod, p.CUIT)
	}
	if p.Year < 1000 || p.Year > 9999 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidPeriod, p.Year, p.Month)
	}
	return nil
}

// TaxRateSummary acumulado por alícuota sobre los comprobantes no anulados exportados.
type TaxRateSummary struct {
	AlicuotaID int
	Base       decimal.Decimal
	Tax        decimal.Decimal
	Count      int
}

// Export resultado de la exportación.
type Export struct {
	Content  string
	Filename string
	Checksum string // SHA-256 hex del contenido
	Sales    int
	Voided   int
	Records  int
	Net      decimal.Decimal
	Tax      decimal.Decimal
	Total    decimal.Decimal
	Rates    []TaxRateSummary
}

// Generate arma el archivo del período. Sólo considera facturas del canal ARCA: las autorizadas con CAE
// van como venta, las anuladas como comprobante anulado y el resto se ignora.
// La entrada no se modifica; se ordena una copia por fecha, punto de venta, tipo y número.
func Generate(period Period, invoices []*entity.Invoice) (*Export, error) {
	if err := period.validate(); err != nil {
		return nil, err
	}
	cuit := afip.NormalizeCUIT(period.CUIT)

	sorted := make([]*entity.Invoice, 0, len(invoices))
	for _, inv := range invoices {
		if inv != nil && inv.IsARCA() {
			sorted = append(sorted, inv)
		}
	}
	slices.SortStableFunc(sorted, compareInvoices)

	var (
		records []string
		out     = &Export{Net: decimal.Zero, Tax: decimal.Zero, Total: decimal.Zero}
		rates   = map[int]*TaxRateSummary{}
	)

	records = append(records, RecordHeader+num(cuit, 11)+period.Code()+text(headerDescription, 20))

	for _, inv := range sorted {
		switch {
		case inv.IsAuthorized():
			rec, alic, err := saleRecord(cuit, inv)
			if err != nil {
				return nil, err
			}
			records = append(records, rec)
			out.Sales++

			base := inv.TaxableAmount().Round(2)
			tax := inv.TaxAmount.Round(2)
			out.Net = out.Net.Add(base)
			out.Tax = out.Tax.Add(tax)
			out.Total = out.Total.Add(inv.Total.Round(2))

			s, ok := rates[alic]
			if !ok {
				s = &TaxRateSummary{AlicuotaID: alic, Base: decimal.Zero, Tax: decimal.Zero}
				rates[alic] = s
			}
			s.Base = s.Base.Add(base)
			s.Tax = s.Tax.Add(tax)
			s.Count++
		case inv.IsCancelled():
			records = append(records, voidedRecord(inv))
			out.Voided++
		}
	}

	for _, id := range slices.Sorted(maps.Keys(rates)) {
		s := rates[id]
		base, err := amount(s.Base, 15)
		if err != nil {
			return nil, err
		}
		tax, err := amount(s.Tax, 15)
		if err != nil {
			return nil, err
		}
		count, err := intField(int64(s.Count), 6)
		if err != nil {
			return nil, err
		}
		records = append(records, RecordSummary+intPad(int64(id), 4)+base+tax+count)
		out.Rates = append(out.Rates, *s)
	}

	footer, err := footerRecord(cuit, period, out, len(records)+1)
	if err != nil {
		return nil, err
	}
	records = append(records, footer)

	out.Records = len(records)
	out.Content = strings.Join(records, RecordSeparator)
	out.Filename = fmt.Sprintf("LIBRO_IVA_DIGITAL_VENTAS_%s_%s.txt", cuit, period.Code())
	sum := sha256.Sum256([]byte(out.Content))
	out.Checksum = hex.EncodeToString(sum[:])
	return out, nil
}

func compareInvoices(a, b *entity.Invoice) int {
	return cmp.Or(
		cmp.Compare(a.Date.Format("20060102"), b.Date.Format("20060102")),
		cmp.Compare(a.Fiscal.PointOfSale, b.Fiscal.PointOfSale),
		cmp.Compare(a.Fiscal.DocumentType, b.Fiscal.DocumentType),
		cmp.Compare(a.Fiscal.Sequence, b.Fiscal.Sequence),
		cmp.Compare(a.ID, b.ID),
	)
}

func saleRecord(cuit string, inv *entity.Invoice) (string, int, error) {
	doc := arca.ClassifyCustomerDocument(inv.CustomerTaxID, inv.Fiscal.DocumentType, arca.IsSelfBilling(inv.CustomerTaxID, cuit))
	base := inv.TaxableAmount().Round(2)
	tax := inv.TaxAmount.Round(2)
	// Tasa fuera del catálogo: alícuota 0 (indefinida), sin aproximar a la más cercana.
	alic := afip.AlicuotaID(inv.TaxRate)

	total, err := amount(inv.Total, 15)
	if err != nil {
		return "", 0, err
	}
	net, err := amount(base, 15)
	if err != nil {
		return "", 0, err
	}
	iva, err := amount(tax, 15)
	if err != nil {
		return "", 0, err
	}

	var b strings.Builder
	b.WriteString(RecordSale)
	b.WriteString(inv.Date.Format("20060102"))
	b.WriteString(intPad(int64(inv.Fiscal.DocumentType), 3))
	b.WriteString(intPad(int64(inv.Fiscal.PointOfSale), 5))
	b.WriteString(intPad(inv.Fiscal.Sequence, 20))
	b.WriteString(intPad(int64(doc.Type), 2))
	b.WriteString(intPad(doc.Number, 20))
	b.WriteString(text(inv.CustomerName, 30))
	b.WriteString(total)
	b.WriteString(net)
	b.WriteString(iva)
	b.WriteString(intPad(int64(alic), 4))
	b.WriteString(num(inv.Fiscal.CAE, 14))
	b.WriteString(num(inv.Fiscal.CAEExpiry, 8))
	return b.String(), alic, nil
}

func voidedRecord(inv *entity.Invoice) string {
	date := "00000000"
	if !inv.Date.IsZero() {
		date = inv.Date.Format("20060102")
	}
	return RecordVoided +
		date +
		intPad(int64(inv.Fiscal.DocumentType), 3) +
		intPad(int64(inv.Fiscal.PointOfSale), 5) +
		intPad(inv.Fiscal.Sequence, 20) +
		num(inv.Fiscal.CAE, 14)
}

func footerRecord(cuit string, period Period, out *Export, records int) (string, error) {
	var b strings.Builder
	b.WriteString(RecordFooter)
	b.WriteString(num(cuit, 11))
	b.WriteString(period.Code())
	for _, f := range []struct {
		v     int64
		width int
	}{{int64(out.Sales), 8}, {int64(out.Voided), 8}, {int64(len(out.Rates)), 4}, {int64(records), 8}} {
		s, err := intField(f.v, f.width)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	for _, d := range []decimal.Decimal{out.Net, out.Tax, out.Total} {
		s, err := amount(d, 15)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// amount importe en centavos (redondeo al centavo más cercano, mitades hacia arriba), relleno con ceros.
// Un negativo lleva "-" como primer carácter dentro del ancho.
func amount(d decimal.Decimal, width int) (string, error) {
	cents := d.Mul(decimal.NewFromInt(100)).Round(0)
	digits := cents.Abs().String()
	if cents.IsNegative() {
		if len(digits) > width-1 {
			return "", fmt.Errorf("%w: %s en %d", ErrFieldOverflow, d.String(), width)
		}
		return "-" + strings.Repeat("0", width-1-len(digits)) + digits, nil
	}
	if len(digits) > width {
		return "", fmt.Errorf("%w: %s en %d", ErrFieldOverflow, d.String(), width)
	}
	return strings.Repeat("0", width-len(digits)) + digits, nil
}

func intField(v int64, width int) (string, error) {
	s := intPad(v, width)
	if len(s) > width {
		return "", fmt.Errorf("%w: %d en %d", ErrFieldOverflow, v, width)
	}
	return s, nil
}

func intPad(v int64, width int) string {
	if v < 0 {
		v = 0
	}
	return fmt.Sprintf("%0*d", width, v)
}

// num campo numérico de texto (CUIT, CAE, fecha): sólo dígitos, ceros a la izquierda, truncado por derecha.
func num(s string, width int) string {
	d := afip.NormalizeCUIT(s)
	if len(d) >= width {
		return d[:width]
	}
	return strings.Repeat("0", width-len(d)) + d
}

// text mayúsculas ASCII sin acentos, completado con espacios a la derecha y truncado al ancho.
func text(s string, width int) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToUpper(folded)

	var b strings.Builder
	n := 0
	for _, r := range folded {
		if n == width {
			break
		}
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			r = ' '
		}
		b.WriteRune(r)
		n++
	}
	if n < width {
		b.WriteString(strings.Repeat(" ", width-n))
	}
	return b.String()
}
