package arca_test

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"
	"errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"

	arcadomain "github.com/jhoicas/arca-facturacion/internal/domain/arca"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/arca"
	"github.com/jhoicas/arca-facturacion/internal/infrastructure/storage"
)

// ──────────────────────────────────────────────────────────────────────────────
// Helpers de test
// ──────────────────────────────────────────────────────────────────────────────

const wsfeNS = "http://ar.gov.afip.dif.FEV1/"

func newSigner(t *testing.T) (*x509.Certificate, *rsa.PrivateKey, []byte, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	now := time.Now()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(7),
		Subject:      pkix.Name{CommonName: "empresa-test", SerialNumber: "CUIT 20123456786"},
		NotBefore:    now.AddDate(-1, 0, 0),
		NotAfter:     now.AddDate(1, 0, 0),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	return cert, key, certPEM, keyPEM
}

func soapResponse(body string) string {
	return `<?xml version="1.0" encoding="utf-8"?>` +
		`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>` +
		body + `</soap:Body></soap:Envelope>`
}

func escapeXML(t *testing.T, s string) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, xml.EscapeText(&buf, []byte(s)))
	return buf.String()
}

type wsfeCall struct {
	action string
	body   string
}

// wsfeServer responde según SOAPAction y guarda los pedidos recibidos.
func wsfeServer(t *testing.T, responses map[string]string, status int) (*httptest.Server, *[]wsfeCall) {
	t.Helper()
	calls := &[]wsfeCall{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		action := strings.Trim(r.Header.Get("SOAPAction"), `"`)
		*calls = append(*calls, wsfeCall{action: action, body: string(raw)})
		op := strings.TrimPrefix(action, wsfeNS)
		resp, ok := responses[op]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=utf-8")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, soapResponse(resp))
	}))
	t.Cleanup(srv.Close)
	return srv, calls
}

func newWSFEClient(url string) *arca.Client {
	return arca.NewClient(storage.NewLocalReader(""), arca.Config{WSFEURL: url, Timeout: 5 * time.Second})
}

var testAuth = arca.Auth{Token: "TOKEN", Sign: "SIGN", CUIT: "20-12345678-6", Environment: "homologacion"}

// ──────────────────────────────────────────────────────────────────────────────
// TRA
// ──────────────────────────────────────────────────────────────────────────────

func TestBuildTRA_VentanaYServicio(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("ART", -3*3600))

	tra, err := arca.BuildTRA(arca.ServiceWSFE, now)
	require.NoError(t, err)
	assert.NotContains(t, string(tra), "<?xml")

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(tra))
	root := doc.SelectElement("loginTicketRequest")
	require.NotNil(t, root)
	assert.Equal(t, "1.0", root.SelectAttrValue("version", ""))
	assert.Equal(t, "wsfe", root.FindElement("service").Text())
	assert.NotEmpty(t, root.FindElement("header/uniqueId").Text())
	assert.Equal(t, "2026-03-01T11:50:00-03:00", root.FindElement("header/generationTime").Text())
	assert.Equal(t, "2026-03-01T12:10:00-03:00", root.FindElement("header/expirationTime").Text())
}

func TestSignTRA_CMSVerificable(t *testing.T) {
	cert, key, _, _ := newSigner(t)
	tra, err := arca.BuildTRA(arca.ServiceWSFE, time.Now())
	require.NoError(t, err)

	der, err := arca.SignTRA(tra, cert, key)
	require.NoError(t, err)

	p7, err := pkcs7.Parse(der)
	require.NoError(t, err)
	assert.Equal(t, tra, p7.Content)
	require.NoError(t, p7.Verify())
	require.Len(t, p7.Certificates, 1)
	assert.Equal(t, cert.Raw, p7.Certificates[0].Raw)
}

// ──────────────────────────────────────────────────────────────────────────────
// WSAA
// ──────────────────────────────────────────────────────────────────────────────

func TestAcquireToken_LoginCms(t *testing.T) {
	_, _, certPEM, keyPEM := newSigner(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), certPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), keyPEM, 0o600))

	ticket := `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<loginTicketResponse version="1.0"><header><source>CN=wsaahomo</source>` +
		`<destination>SERIALNUMBER=CUIT 20123456786</destination><uniqueId>1</uniqueId>` +
		`<generationTime>2026-03-01T11:50:00.000-03:00</generationTime>` +
		`<expirationTime>2026-03-01T23:50:00.123-03:00</expirationTime></header>` +
		`<credentials><token>PD94bWwgdG9rZW4=</token><sign>c2lnbg==</sign></credentials></loginTicketResponse>`

	escaped := escapeXML(t, ticket)
	var gotContent []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		doc := etree.NewDocument()
		if err := doc.ReadFromBytes(raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		in0 := doc.FindElement("//ns:loginCms/ns:in0")
		if in0 == nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		der, _ := base64.StdEncoding.DecodeString(in0.Text())
		if p7, err := pkcs7.Parse(der); err == nil && p7.Verify() == nil {
			gotContent = p7.Content
		}
		_, _ = io.WriteString(w, soapResponse(`<loginCmsResponse xmlns="http://wsaa.view.sua.dvadac.desein.afip.gov">`+
			`<loginCmsReturn>`+escaped+`</loginCmsReturn></loginCmsResponse>`))
	}))
	defer srv.Close()

	client := arca.NewClient(storage.NewLocalReader(dir), arca.Config{})
	tok, err := client.AcquireToken(context.Background(), arca.TokenRequest{
		CUIT:     "20123456786",
		CertPath: "cert.pem",
		KeyPath:  "key.pem",
		Endpoint: srv.URL,
	})
	require.NoError(t, err)

	assert.Equal(t, "PD94bWwgdG9rZW4=", tok.Token)
	assert.Equal(t, "c2lnbg==", tok.Sign)
	want := time.Date(2026, 3, 2, 2, 50, 0, 123000000, time.UTC)
	assert.True(t, want.Equal(tok.ExpiresAt), "expiración %s", tok.ExpiresAt)

	require.NotNil(t, gotContent, "el CMS enviado debe verificar")
	assert.Contains(t, string(gotContent), "<loginTicketRequest")
	assert.Contains(t, string(gotContent), "<service>wsfe</service>")
}

func TestAcquireToken_CertificadoInexistente(t *testing.T) {
	client := arca.NewClient(storage.NewLocalReader(t.TempDir()), arca.Config{})
	_, err := client.AcquireToken(context.Background(), arca.TokenRequest{CertPath: "no.pem", KeyPath: "no.key"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leer certificado")
}

func TestAcquireToken_SOAPFault(t *testing.T) {
	_, _, certPEM, keyPEM := newSigner(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cert.pem"), certPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "key.pem"), keyPEM, 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, soapResponse(`<soap:Fault><faultcode>ns1:coe.alreadyAuthenticated</faultcode>`+
			`<faultstring>El CEE ya posee un TA valido para el acceso al WSN solicitado</faultstring></soap:Fault>`))
	}))
	defer srv.Close()

	client := arca.NewClient(storage.NewLocalReader(dir), arca.Config{WSAAURL: srv.URL})
	_, err := client.AcquireToken(context.Background(), arca.TokenRequest{CertPath: "cert.pem", KeyPath: "key.pem"})

	var authErr *arca.AuthorityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "loginCms", authErr.Operation)
	assert.Equal(t, "ns1:coe.alreadyAuthenticated", authErr.Code)
}

// ──────────────────────────────────────────────────────────────────────────────
// WSFE
// ──────────────────────────────────────────────────────────────────────────────

func TestLastAuthorized(t *testing.T) {
	srv, calls := wsfeServer(t, map[string]string{
		"FECompUltimoAutorizado": `<FECompUltimoAutorizadoResponse xmlns="http://ar.gov.afip.dif.FEV1/">` +
			`<FECompUltimoAutorizadoResult><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo><CbteNro>41</CbteNro>` +
			`</FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`,
	}, http.StatusOK)

	n, err := newWSFEClient(srv.URL).LastAuthorized(context.Background(), testAuth, 3, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(41), n)

	require.Len(t, *calls, 1)
	c := (*calls)[0]
	assert.Equal(t, wsfeNS+"FECompUltimoAutorizado", c.action)
	assert.Contains(t, c.body, "<ns:Cuit>20123456786</ns:Cuit>")
	assert.Contains(t, c.body, "<ns:PtoVta>3</ns:PtoVta>")
	assert.Contains(t, c.body, "<ns:CbteTipo>1</ns:CbteTipo>")
}

func TestLastAuthorized_ErroresComoAuthorityError(t *testing.T) {
	srv, _ := wsfeServer(t, map[string]string{
		"FECompUltimoAutorizado": `<FECompUltimoAutorizadoResponse><FECompUltimoAutorizadoResult>` +
			`<Errors><Err><Code>600</Code><Msg>ValidacionDeToken: No validaron las credenciales</Msg></Err></Errors>` +
			`</FECompUltimoAutorizadoResult></FECompUltimoAutorizadoResponse>`,
	}, http.StatusOK)

	_, err := newWSFEClient(srv.URL).LastAuthorized(context.Background(), testAuth, 3, 1)
	var authErr *arca.AuthorityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "600", authErr.Code)
}

func TestLastAuthorized_CUITInvalida(t *testing.T) {
	auth := testAuth
	auth.CUIT = ""
	_, err := newWSFEClient("http://127.0.0.1:0").LastAuthorized(context.Background(), auth, 3, 1)
	require.Error(t, err)
}

func caeRequest() *arcadomain.CAERequest {
	return &arcadomain.CAERequest{
		PointOfSale:            3,
		DocumentType:           1,
		Sequence:               42,
		Concept:                1,
		CustomerDocType:        80,
		CustomerDocNumber:      30712345671,
		CondicionIVAReceptorID: 1,
		Date:                   "20260115",
		Taxable:                decimal.NewFromInt(1000),
		Tax:                    decimal.NewFromInt(210),
		Total:                  decimal.NewFromInt(1210),
		Currency:               "PES",
		CurrencyRate:           decimal.NewFromInt(1),
		IVA:                    []arcadomain.AlicuotaIVA{{ID: 5, BaseImp: decimal.NewFromInt(1000), Importe: decimal.NewFromInt(210)}},
	}
}

func TestRequestCAE_Aprobado(t *testing.T) {
	srv, calls := wsfeServer(t, map[string]string{
		"FECAESolicitar": `<FECAESolicitarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECAESolicitarResult>` +
			`<FeCabResp><Cuit>20123456786</Cuit><PtoVta>3</PtoVta><CbteTipo>1</CbteTipo><Resultado>A</Resultado></FeCabResp>` +
			`<FeDetResp><FECAEDetResponse><CbteDesde>42</CbteDesde><CbteHasta>42</CbteHasta><Resultado>A</Resultado>` +
			`<CAE>70123456789012</CAE><CAEFchVto>20260215</CAEFchVto></FECAEDetResponse></FeDetResp>` +
			`</FECAESolicitarResult></FECAESolicitarResponse>`,
	}, http.StatusOK)

	resp, err := newWSFEClient(srv.URL).RequestCAE(context.Background(), testAuth, caeRequest())
	require.NoError(t, err)
	assert.True(t, resp.Approved())
	assert.Equal(t, "70123456789012", resp.CAE)
	assert.Equal(t, "20260215", resp.CAEExpiry)
	assert.Equal(t, int64(42), resp.Sequence)

	require.Len(t, *calls, 1)
	body := (*calls)[0].body
	for _, frag := range []string{
		"<ns:CantReg>1</ns:CantReg>",
		"<ns:CbteDesde>42</ns:CbteDesde>",
		"<ns:CbteHasta>42</ns:CbteHasta>",
		"<ns:DocTipo>80</ns:DocTipo>",
		"<ns:DocNro>30712345671</ns:DocNro>",
		"<ns:CbteFch>20260115</ns:CbteFch>",
		"<ns:ImpTotal>1210.00</ns:ImpTotal>",
		"<ns:ImpNeto>1000.00</ns:ImpNeto>",
		"<ns:ImpIVA>210.00</ns:ImpIVA>",
		"<ns:MonId>PES</ns:MonId>",
		"<ns:CondicionIVAReceptorId>1</ns:CondicionIVAReceptorId>",
		"<ns:Iva><ns:AlicIva><ns:Id>5</ns:Id><ns:BaseImp>1000.00</ns:BaseImp><ns:Importe>210.00</ns:Importe></ns:AlicIva></ns:Iva>",
	} {
		assert.Contains(t, body, frag)
	}
}

func TestRequestCAE_SinIVAOmiteElemento(t *testing.T) {
	srv, calls := wsfeServer(t, map[string]string{
		"FECAESolicitar": `<FECAESolicitarResponse><FECAESolicitarResult><FeCabResp><Resultado>A</Resultado></FeCabResp>` +
			`<FeDetResp><FECAEDetResponse><Resultado>A</Resultado><CAE>1</CAE><CAEFchVto>20260215</CAEFchVto>` +
			`</FECAEDetResponse></FeDetResp></FECAESolicitarResult></FECAESolicitarResponse>`,
	}, http.StatusOK)

	req := caeRequest()
	req.DocumentType = 11
	req.Tax = decimal.Zero
	req.IVA = nil
	_, err := newWSFEClient(srv.URL).RequestCAE(context.Background(), testAuth, req)
	require.NoError(t, err)
	assert.NotContains(t, (*calls)[0].body, "Iva>")
}

func TestRequestCAE_Rechazado(t *testing.T) {
	srv, _ := wsfeServer(t, map[string]string{
		"FECAESolicitar": `<FECAESolicitarResponse><FECAESolicitarResult>` +
			`<FeCabResp><Resultado>R</Resultado></FeCabResp>` +
			`<FeDetResp><FECAEDetResponse><Resultado>R</Resultado><CAE></CAE>` +
			`<Observaciones><Obs><Code>10015</Code><Msg>CUIT no autorizado</Msg></Obs></Observaciones>` +
			`</FECAEDetResponse></FeDetResp></FECAESolicitarResult></FECAESolicitarResponse>`,
	}, http.StatusOK)

	resp, err := newWSFEClient(srv.URL).RequestCAE(context.Background(), testAuth, caeRequest())
	require.NoError(t, err)
	assert.False(t, resp.Approved())
	assert.Equal(t, "R", resp.Result)
	assert.Equal(t, arca.Message{Code: "10015", Msg: "CUIT no autorizado"}, resp.Rejection())
}

func TestRequestCAE_ErroresSinDetalle(t *testing.T) {
	srv, _ := wsfeServer(t, map[string]string{
		"FECAESolicitar": `<FECAESolicitarResponse><FECAESolicitarResult>` +
			`<Errors><Err><Code>10016</Code><Msg>El numero o fecha del comprobante no se corresponde</Msg></Err></Errors>` +
			`</FECAESolicitarResult></FECAESolicitarResponse>`,
	}, http.StatusOK)

	resp, err := newWSFEClient(srv.URL).RequestCAE(context.Background(), testAuth, caeRequest())
	require.NoError(t, err)
	assert.Equal(t, "R", resp.Result)
	assert.Equal(t, "10016", resp.Rejection().Code)
}

func TestRequestCAE_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "bad gateway")
	}))
	defer srv.Close()

	_, err := newWSFEClient(srv.URL).RequestCAE(context.Background(), testAuth, caeRequest())
	require.Error(t, err)
	var authErr *arca.AuthorityError
	assert.False(t, errors.As(err, &authErr))
}

func TestQueryCAE(t *testing.T) {
	srv, calls := wsfeServer(t, map[string]string{
		"FECompConsultar": `<FECompConsultarResponse xmlns="http://ar.gov.afip.dif.FEV1/"><FECompConsultarResult><ResultGet>` +
			`<CbteTipo>1</CbteTipo><PtoVta>3</PtoVta><CbteDesde>42</CbteDesde><CbteFch>20260204</CbteFch>` +
			`<DocTipo>80</DocTipo><DocNro>20123456786</DocNro><ImpTotal>1210.00</ImpTotal><Resultado>A</Resultado>` +
			`<CodAutorizacion>70123456789012</CodAutorizacion><FchVto>20260215</FchVto>` +
			`</ResultGet></FECompConsultarResult></FECompConsultarResponse>`,
	}, http.StatusOK)

	resp, err := newWSFEClient(srv.URL).QueryCAE(context.Background(), testAuth, 3, 1, 42)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.True(t, resp.Approved())
	assert.Equal(t, "70123456789012", resp.CAE)
	require.NotNil(t, resp.Issued)
	assert.Equal(t, 80, resp.Issued.CustomerDocType)
	assert.Equal(t, int64(20123456786), resp.Issued.CustomerDocNumber)
	assert.Equal(t, "20260204", resp.Issued.Date)
	assert.True(t, resp.Issued.Total.Equal(decimal.NewFromInt(1210)))
	assert.Contains(t, (*calls)[0].body, "<ns:CbteNro>42</ns:CbteNro>")
}

func TestQueryCAE_Inexistente(t *testing.T) {
	srv, _ := wsfeServer(t, map[string]string{
		"FECompConsultar": `<FECompConsultarResponse><FECompConsultarResult>` +
			`<Errors><Err><Code>602</Code><Msg>No existen datos en nuestros registros para los parametros ingresados.</Msg></Err></Errors>` +
			`</FECompConsultarResult></FECompConsultarResponse>`,
	}, http.StatusOK)

	resp, err := newWSFEClient(srv.URL).QueryCAE(context.Background(), testAuth, 3, 1, 42)
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestQueryCAE_OtroError(t *testing.T) {
	srv, _ := wsfeServer(t, map[string]string{
		"FECompConsultar": `<FECompConsultarResponse><FECompConsultarResult>` +
			`<Errors><Err><Code>501</Code><Msg>Error interno de base de datos</Msg></Err></Errors>` +
			`</FECompConsultarResult></FECompConsultarResponse>`,
	}, http.StatusOK)

	_, err := newWSFEClient(srv.URL).QueryCAE(context.Background(), testAuth, 3, 1, 42)
	var authErr *arca.AuthorityError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, "FECompConsultar", authErr.Operation)
	assert.Equal(t, "501", authErr.Code)
}

func TestEndpointsPorEntorno(t *testing.T) {
	assert.Contains(t, arca.WSAAEndpoint("produccion"), "wsaa.afip.gov.ar")
	assert.Contains(t, arca.WSAAEndpoint("homologacion"), "wsaahomo")
	assert.Contains(t, arca.WSFEEndpoint("produccion"), "servicios1.afip.gov.ar")
	assert.Contains(t, arca.WSFEEndpoint(""), "wswhomo")
}
