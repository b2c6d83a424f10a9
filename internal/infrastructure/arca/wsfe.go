package arca

import (
	"context"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	arcadomain "github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/pkg/afip"
)

// ── Estructuras de pedido ─────────────────────────────────────────────────────

type wsfeAuth struct {
	Token string `xml:"ns:Token"`
	Sign  string `xml:"ns:Sign"`
	Cuit  int64  `xml:"ns:Cuit"`
}

type ultimoAutorizadoRequest struct {
	XMLName  xml.Name `xml:"ns:FECompUltimoAutorizado"`
	Auth     wsfeAuth `xml:"ns:Auth"`
	PtoVta   int      `xml:"ns:PtoVta"`
	CbteTipo int      `xml:"ns:CbteTipo"`
}

type caeSolicitarRequest struct {
	XMLName  xml.Name `xml:"ns:FECAESolicitar"`
	Auth     wsfeAuth `xml:"ns:Auth"`
	FeCAEReq feCAEReq `xml:"ns:FeCAEReq"`
}

type feCAEReq struct {
	FeCabReq feCabReq      `xml:"ns:FeCabReq"`
	FeDetReq []feCAEDetReq `xml:"ns:FeDetReq>ns:FECAEDetRequest"`
}

type feCabReq struct {
	CantReg  int `xml:"ns:CantReg"`
	PtoVta   int `xml:"ns:PtoVta"`
	CbteTipo int `xml:"ns:CbteTipo"`
}

type feCAEDetReq struct {
	Concepto               int       `xml:"ns:Concepto"`
	DocTipo                int       `xml:"ns:DocTipo"`
	DocNro                 int64     `xml:"ns:DocNro"`
	CbteDesde              int64     `xml:"ns:CbteDesde"`
	CbteHasta              int64     `xml:"ns:CbteHasta"`
	CbteFch                string    `xml:"ns:CbteFch"`
	ImpTotal               string    `xml:"ns:ImpTotal"`
	ImpTotConc             string    `xml:"ns:ImpTotConc"`
	ImpNeto                string    `xml:"ns:ImpNeto"`
	ImpOpEx                string    `xml:"ns:ImpOpEx"`
	ImpTrib                string    `xml:"ns:ImpTrib"`
	ImpIVA                 string    `xml:"ns:ImpIVA"`
	MonId                  string    `xml:"ns:MonId"`
	MonCotiz               string    `xml:"ns:MonCotiz"`
	CondicionIVAReceptorId int       `xml:"ns:CondicionIVAReceptorId"`
	Iva                    []alicIva `xml:"ns:Iva>ns:AlicIva,omitempty"`
}

type alicIva struct {
	Id      int    `xml:"ns:Id"`
	BaseImp string `xml:"ns:BaseImp"`
	Importe string `xml:"ns:Importe"`
}

type compConsultarRequest struct {
	XMLName       xml.Name      `xml:"ns:FECompConsultar"`
	Auth          wsfeAuth      `xml:"ns:Auth"`
	FeCompConsReq feCompConsReq `xml:"ns:FeCompConsReq"`
}

type feCompConsReq struct {
	CbteTipo int   `xml:"ns:CbteTipo"`
	CbteNro  int64 `xml:"ns:CbteNro"`
	PtoVta   int   `xml:"ns:PtoVta"`
}

// ── Estructuras de respuesta ──────────────────────────────────────────────────

type wsfeErr struct {
	Code string `xml:"Code"`
	Msg  string `xml:"Msg"`
}

type ultimoAutorizadoResponse struct {
	XMLName xml.Name `xml:"FECompUltimoAutorizadoResponse"`
	Result  struct {
		PtoVta   int       `xml:"PtoVta"`
		CbteTipo int       `xml:"CbteTipo"`
		CbteNro  int64     `xml:"CbteNro"`
		Errors   []wsfeErr `xml:"Errors>Err"`
	} `xml:"FECompUltimoAutorizadoResult"`
}

type caeSolicitarResponse struct {
	XMLName xml.Name `xml:"FECAESolicitarResponse"`
	Result  struct {
		FeCabResp struct {
			PtoVta    int    `xml:"PtoVta"`
			CbteTipo  int    `xml:"CbteTipo"`
			Resultado string `xml:"Resultado"`
		} `xml:"FeCabResp"`
		FeDetResp []struct {
			CbteDesde     int64     `xml:"CbteDesde"`
			Resultado     string    `xml:"Resultado"`
			CAE           string    `xml:"CAE"`
			CAEFchVto     string    `xml:"CAEFchVto"`
			Observaciones []wsfeErr `xml:"Observaciones>Obs"`
		} `xml:"FeDetResp>FECAEDetResponse"`
		Errors []wsfeErr `xml:"Errors>Err"`
	} `xml:"FECAESolicitarResult"`
}

type compConsultarResponse struct {
	XMLName xml.Name `xml:"FECompConsultarResponse"`
	Result  struct {
		ResultGet *struct {
			CbteTipo        int       `xml:"CbteTipo"`
			PtoVta          int       `xml:"PtoVta"`
			CbteDesde       int64     `xml:"CbteDesde"`
			CbteFch         string    `xml:"CbteFch"`
			DocTipo         int       `xml:"DocTipo"`
			DocNro          int64     `xml:"DocNro"`
			ImpTotal        string    `xml:"ImpTotal"`
			Resultado       string    `xml:"Resultado"`
			CodAutorizacion string    `xml:"CodAutorizacion"`
			FchVto          string    `xml:"FchVto"`
			Observaciones   []wsfeErr `xml:"Observaciones>Obs"`
		} `xml:"ResultGet"`
		Errors []wsfeErr `xml:"Errors>Err"`
	} `xml:"FECompConsultarResult"`
}

// ── Operaciones ───────────────────────────────────────────────────────────────

// LastAuthorized invoca FECompUltimoAutorizado.
func (c *Client) LastAuthorized(ctx context.Context, auth Auth, pointOfSale, documentType int) (int64, error) {
	a, err := toWSFEAuth(auth)
	if err != nil {
		return 0, err
	}
	var resp ultimoAutorizadoResponse
	body := &ultimoAutorizadoRequest{Auth: a, PtoVta: pointOfSale, CbteTipo: documentType}
	if err := c.call(ctx, c.wsfeURL(auth), wsfeNS, wsfeAction+"FECompUltimoAutorizado", "FECompUltimoAutorizado", body, &resp); err != nil {
		return 0, err
	}
	if errs := resp.Result.Errors; len(errs) > 0 {
		return 0, &AuthorityError{Operation: "FECompUltimoAutorizado", Code: errs[0].Code, Message: errs[0].Msg}
	}
	return resp.Result.CbteNro, nil
}

// RequestCAE invoca FECAESolicitar con un único comprobante.
func (c *Client) RequestCAE(ctx context.Context, auth Auth, req *arcadomain.CAERequest) (*CAEResponse, error) {
	a, err := toWSFEAuth(auth)
	if err != nil {
		return nil, err
	}
	det := feCAEDetReq{
		Concepto:               req.Concept,
		DocTipo:                req.CustomerDocType,
		DocNro:                 req.CustomerDocNumber,
		CbteDesde:              req.Sequence,
		CbteHasta:              req.Sequence,
		CbteFch:                req.Date,
		ImpTotal:               money(req.Total),
		ImpTotConc:             money(decimal.Zero),
		ImpNeto:                money(req.Taxable),
		ImpOpEx:                money(decimal.Zero),
		ImpTrib:                money(decimal.Zero),
		ImpIVA:                 money(req.Tax),
		MonId:                  req.Currency,
		MonCotiz:               req.CurrencyRate.StringFixed(6),
		CondicionIVAReceptorId: req.CondicionIVAReceptorID,
	}
	for _, iva := range req.IVA {
		det.Iva = append(det.Iva, alicIva{Id: iva.ID, BaseImp: money(iva.BaseImp), Importe: money(iva.Importe)})
	}
	body := &caeSolicitarRequest{
		Auth: a,
		FeCAEReq: feCAEReq{
			FeCabReq: feCabReq{CantReg: 1, PtoVta: req.PointOfSale, CbteTipo: req.DocumentType},
			FeDetReq: []feCAEDetReq{det},
		},
	}

	var resp caeSolicitarResponse
	if err := c.call(ctx, c.wsfeURL(auth), wsfeNS, wsfeAction+"FECAESolicitar", "FECAESolicitar", body, &resp); err != nil {
		return nil, err
	}

	r := resp.Result
	out := &CAEResponse{
		Result:       r.FeCabResp.Resultado,
		PointOfSale:  req.PointOfSale,
		DocumentType: req.DocumentType,
		Sequence:     req.Sequence,
		Errors:       toMessages(r.Errors),
	}
	if len(r.FeDetResp) > 0 {
		d := r.FeDetResp[0]
		out.Result = d.Resultado
		out.CAE = d.CAE
		out.CAEExpiry = d.CAEFchVto
		out.Observations = toMessages(d.Observaciones)
	}
	if out.Result == "" {
		out.Result = afip.ResultadoRechazado
	}
	return out, nil
}

// QueryCAE invoca FECompConsultar. El error 602 (comprobante inexistente) devuelve nil, nil.
func (c *Client) QueryCAE(ctx context.Context, auth Auth, pointOfSale, documentType int, sequence int64) (*CAEResponse, error) {
	a, err := toWSFEAuth(auth)
	if err != nil {
		return nil, err
	}
	body := &compConsultarRequest{
		Auth:          a,
		FeCompConsReq: feCompConsReq{CbteTipo: documentType, CbteNro: sequence, PtoVta: pointOfSale},
	}
	var resp compConsultarResponse
	if err := c.call(ctx, c.wsfeURL(auth), wsfeNS, wsfeAction+"FECompConsultar", "FECompConsultar", body, &resp); err != nil {
		return nil, err
	}

	for _, e := range resp.Result.Errors {
		if e.Code == afip.ErrCodeCbteInexistente {
			return nil, nil
		}
	}
	if errs := resp.Result.Errors; len(errs) > 0 {
		return nil, &AuthorityError{Operation: "FECompConsultar", Code: errs[0].Code, Message: errs[0].Msg}
	}
	g := resp.Result.ResultGet
	if g == nil {
		return nil, nil
	}
	issued := &arcadomain.IssuedVoucher{
		CustomerDocType:   g.DocTipo,
		CustomerDocNumber: g.DocNro,
		Date:              g.CbteFch,
	}
	if total, err := decimal.NewFromString(strings.TrimSpace(g.ImpTotal)); err == nil {
		issued.Total = total
	}
	return &CAEResponse{
		Result:       g.Resultado,
		CAE:          g.CodAutorizacion,
		CAEExpiry:    g.FchVto,
		PointOfSale:  pointOfSale,
		DocumentType: documentType,
		Sequence:     sequence,
		Observations: toMessages(g.Observaciones),
		Issued:       issued,
	}, nil
}

func toWSFEAuth(auth Auth) (wsfeAuth, error) {
	cuit, err := strconv.ParseInt(afip.NormalizeCUIT(auth.CUIT), 10, 64)
	if err != nil {
		return wsfeAuth{}, fmt.Errorf("wsfe: CUIT del emisor inválida %q", auth.CUIT)
	}
	return wsfeAuth{Token: auth.Token, Sign: auth.Sign, Cuit: cuit}, nil
}

func toMessages(in []wsfeErr) []Message {
	if len(in) == 0 {
		return nil
	}
	out := make([]Message, 0, len(in))
	for _, e := range in {
		out = append(out, Message{Code: e.Code, Msg: e.Msg})
	}
	return out
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}
