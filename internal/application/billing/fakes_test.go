package billing_test

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/arca-facturacion/internal/domain"
	arcadomain "github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/internal/domain/entity"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca/credentials"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

const (
	companyID    = "11111111-1111-1111-1111-111111111111"
	otherCompany = "22222222-2222-2222-2222-222222222222"
	issuerCUIT   = "30-71234567-1"
	customerCUIT = "20-12345678-6"
	testPOS      = 3
)

var fixedNow = time.Date(2026, 2, 5, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

// ── Repositorios en memoria ───────────────────────────────────────────────────

type memInvoices struct {
	mu        sync.Mutex
	items     map[string]*entity.Invoice
	lastLimit int
	failMark  error
}

func newMemInvoices(invoices ...*entity.Invoice) *memInvoices {
	m := &memInvoices{items: map[string]*entity.Invoice{}}
	for _, inv := range invoices {
		m.items[inv.ID] = inv
	}
	return m
}

func (m *memInvoices) get(id string) *entity.Invoice {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *m.items[id]
	return &cp
}

func (m *memInvoices) GetByID(_ context.Context, id string) (*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *inv
	return &cp, nil
}

func (m *memInvoices) ListPendingCAE(_ context.Context, limit int) ([]*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	ids := make([]string, 0, len(m.items))
	for id, inv := range m.items {
		if inv.IsARCA() && inv.IsPendingCAE() {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	var out []*entity.Invoice
	for _, id := range ids {
		if len(out) == limit {
			break
		}
		cp := *m.items[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memInvoices) ListForPeriod(_ context.Context, company string, from, to time.Time) ([]*entity.Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.Invoice
	for _, inv := range m.items {
		if inv.CompanyID == company && inv.IsARCA() && !inv.Date.Before(from) && inv.Date.Before(to) {
			cp := *inv
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memInvoices) mutable(id string) (*entity.Invoice, error) {
	inv, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if inv.Status == entity.InvoiceStatusAuthorized || inv.Status == entity.InvoiceStatusCancelled {
		return nil, domain.ErrConflict
	}
	return inv, nil
}

func (m *memInvoices) UpdateDocumentType(_ context.Context, id string, documentType int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.mutable(id)
	if err != nil {
		return err
	}
	inv.Fiscal.DocumentType = documentType
	return nil
}

func (m *memInvoices) ReserveFiscalKey(_ context.Context, id string, pointOfSale, documentType int, sequence int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	inv, err := m.mutable(id)
	if err != nil {
		return err
	}
	inv.Fiscal.PointOfSale = pointOfSale
	inv.Fiscal.DocumentType = documentType
	inv.Fiscal.Sequence = sequence
	inv.Fiscal.Status = entity.FiscalStatusPending
	return nil
}

func (m *memInvoices) MarkAuthorized(_ context.Context, id string, fiscal entity.FiscalData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark != nil {
		return m.failMark
	}
	inv, err := m.mutable(id)
	if err != nil {
		return err
	}
	inv.Status = entity.InvoiceStatusAuthorized
	inv.Fiscal = fiscal
	return nil
}

func (m *memInvoices) MarkRejected(_ context.Context, id string, fiscal entity.FiscalData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failMark != nil {
		return m.failMark
	}
	inv, err := m.mutable(id)
	if err != nil {
		return err
	}
	inv.Status = entity.InvoiceStatusRejected
	inv.RetryCount++
	inv.Fiscal = fiscal
	return nil
}

type memConfigs struct {
	mu         sync.Mutex
	items      map[string]*entity.FiscalConfiguration
	updates    int
	failUpdate error
}

func newMemConfigs(cfgs ...*entity.FiscalConfiguration) *memConfigs {
	m := &memConfigs{items: map[string]*entity.FiscalConfiguration{}}
	for _, c := range cfgs {
		m.items[c.CompanyID] = c
	}
	return m
}

func (m *memConfigs) GetByCompanyID(_ context.Context, company string) (*entity.FiscalConfiguration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.items[company]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memConfigs) UpdateToken(_ context.Context, company string, token entity.AuthToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	if m.failUpdate != nil {
		return m.failUpdate
	}
	c, ok := m.items[company]
	if !ok {
		return domain.ErrNotFound
	}
	c.Token = token
	return nil
}

type memAudits struct {
	mu   sync.Mutex
	rows []*entity.InvoiceAudit
}

func (m *memAudits) Append(_ context.Context, a *entity.InvoiceAudit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, a)
	return nil
}

func (m *memAudits) actions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rows))
	for _, r := range m.rows {
		out = append(out, r.Action)
	}
	return out
}

// ── ARCA simulada ─────────────────────────────────────────────────────────────

type fiscalKey struct {
	pos, docType int
	seq          int64
}

// issuedVoucher comprobante autorizado en la ARCA simulada.
type issuedVoucher struct {
	cae     string
	voucher arcadomain.IssuedVoucher
}

// fakeAuthority lleva el último número autorizado por punto de venta y tipo, y los comprobantes emitidos.
type fakeAuthority struct {
	mu sync.Mutex

	last   map[[2]int]int64
	issued map[fiscalKey]issuedVoucher

	cae       string
	caeExpiry string
	reject    *arca.Message
	netErr    error
	tokenErr  error
	// lostResponse autoriza el comprobante pero devuelve error de red, como una respuesta perdida.
	lostResponse bool

	tokenCalls   int
	lastCalls    int
	requestCalls int
	queryCalls   int
	requests     []*arcadomain.CAERequest
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{
		last:      map[[2]int]int64{},
		issued:    map[fiscalKey]issuedVoucher{},
		cae:       "70123456789012",
		caeExpiry: "20260215",
	}
}

func (f *fakeAuthority) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastCalls + f.requestCalls + f.queryCalls
}

func (f *fakeAuthority) AcquireToken(_ context.Context, req arca.TokenRequest) (entity.AuthToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenCalls++
	if f.tokenErr != nil {
		return entity.AuthToken{}, f.tokenErr
	}
	return entity.AuthToken{
		Token:     fmt.Sprintf("token-%s-%d", req.CUIT, f.tokenCalls),
		Sign:      "sign",
		ExpiresAt: fixedNow.Add(12 * time.Hour),
	}, nil
}

func (f *fakeAuthority) LastAuthorized(_ context.Context, _ arca.Auth, pointOfSale, documentType int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCalls++
	if f.netErr != nil {
		return 0, f.netErr
	}
	return f.last[[2]int{pointOfSale, documentType}], nil
}

func (f *fakeAuthority) RequestCAE(_ context.Context, _ arca.Auth, req *arcadomain.CAERequest) (*arca.CAEResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requestCalls++
	f.requests = append(f.requests, req)
	if f.netErr != nil {
		return nil, f.netErr
	}
	resp := &arca.CAEResponse{PointOfSale: req.PointOfSale, DocumentType: req.DocumentType, Sequence: req.Sequence}
	if f.reject != nil {
		resp.Result = "R"
		resp.Observations = []arca.Message{*f.reject}
		return resp, nil
	}
	k := [2]int{req.PointOfSale, req.DocumentType}
	if req.Sequence != f.last[k]+1 {
		resp.Result = "R"
		resp.Errors = []arca.Message{{Code: "10016", Msg: "número no correlativo"}}
		return resp, nil
	}
	f.last[k] = req.Sequence
	f.issued[fiscalKey{req.PointOfSale, req.DocumentType, req.Sequence}] = issuedVoucher{
		cae: f.cae,
		voucher: arcadomain.IssuedVoucher{
			CustomerDocType:   req.CustomerDocType,
			CustomerDocNumber: req.CustomerDocNumber,
			Total:             req.Total,
			Date:              req.Date,
		},
	}
	if f.lostResponse {
		return nil, errNetwork
	}
	resp.Result = "A"
	resp.CAE = f.cae
	resp.CAEExpiry = f.caeExpiry
	return resp, nil
}

func (f *fakeAuthority) QueryCAE(_ context.Context, _ arca.Auth, pointOfSale, documentType int, sequence int64) (*arca.CAEResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.netErr != nil {
		return nil, f.netErr
	}
	v, ok := f.issued[fiscalKey{pointOfSale, documentType, sequence}]
	if !ok {
		return nil, nil
	}
	issued := v.voucher
	return &arca.CAEResponse{
		Result:       "A",
		CAE:          v.cae,
		CAEExpiry:    f.caeExpiry,
		PointOfSale:  pointOfSale,
		DocumentType: documentType,
		Sequence:     sequence,
		Issued:       &issued,
	}, nil
}

// issue registra en la ARCA simulada un comprobante ya autorizado.
func (f *fakeAuthority) issue(key fiscalKey, cae string, voucher arcadomain.IssuedVoucher) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issued[key] = issuedVoucher{cae: cae, voucher: voucher}
	k := [2]int{key.pos, key.docType}
	if key.seq > f.last[k] {
		f.last[k] = key.seq
	}
}

// ── Otros puertos ─────────────────────────────────────────────────────────────

type fakeLocker struct {
	busy     bool
	err      error
	locked   int
	released int
}

func (l *fakeLocker) TryLock(context.Context, string, time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	if l.busy {
		return "", false, nil
	}
	l.locked++
	return "tok", true, nil
}

func (l *fakeLocker) Release(context.Context, string, string) error {
	l.released++
	return nil
}

type fakeValidator struct {
	result credentials.Result
	cuit   string
}

func (v *fakeValidator) Validate(_ context.Context, _, _, cuit string) credentials.Result {
	v.cuit = cuit
	return v.result
}

var errNetwork = errors.New("connection reset by peer")

// ── Fixtures ──────────────────────────────────────────────────────────────────

func completeConfig(company string) *entity.FiscalConfiguration {
	return &entity.FiscalConfiguration{
		ID:          "cfg-" + company,
		CompanyID:   company,
		CUIT:        issuerCUIT,
		CertPath:    "certs/" + company + ".crt",
		KeyPath:     "certs/" + company + ".key",
		PointOfSale: testPOS,
		Environment: entity.EnvironmentHomologacion,
	}
}

func pendingInvoice(id string) *entity.Invoice {
	return &entity.Invoice{
		ID:                   id,
		CompanyID:            companyID,
		Number:               "FV-" + id,
		Channel:              entity.ChannelARCA,
		Date:                 time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC),
		CustomerName:         "Cliente SA",
		CustomerTaxID:        customerCUIT,
		CustomerTaxCondition: "RESPONSABLE_INSCRIPTO",
		Subtotal:             decimal.NewFromInt(1000),
		Discount:             decimal.Zero,
		TaxAmount:            decimal.NewFromInt(210),
		Total:                decimal.NewFromInt(1210),
		TaxRate:              decimal.NewFromInt(21),
		Status:               entity.InvoiceStatusPendingCAE,
		Fiscal:               entity.FiscalData{Status: entity.FiscalStatusPending},
	}
}

// withKey factura que ya pasó por un intento: tiene punto de venta, tipo y número.
func withKey(inv *entity.Invoice, docType int, seq int64) *entity.Invoice {
	inv.Fiscal.PointOfSale = testPOS
	inv.Fiscal.DocumentType = docType
	inv.Fiscal.Sequence = seq
	return inv
}

// voucherOf datos con que ARCA registra una factura de pendingInvoice (receptor con CUIT).
func voucherOf(inv *entity.Invoice) arcadomain.IssuedVoucher {
	return arcadomain.IssuedVoucher{
		CustomerDocType:   afip.DocTipoCUIT,
		CustomerDocNumber: 20123456786,
		Total:             inv.Total.Round(2),
		Date:              inv.Date.Format("20060102"),
	}
}

// rejectedAt factura rechazada en un intento anterior con el número indicado.
func rejectedAt(inv *entity.Invoice, seq int64) *entity.Invoice {
	inv = withKey(inv, afip.CbteFacturaA, seq)
	inv.Status = entity.InvoiceStatusRejected
	inv.Fiscal.Status = entity.FiscalStatusRejected
	inv.RetryCount = 1
	return inv
}
