package authority

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "nomina/pkg/domain-errors"
	"nomina/pkg/platform/circuit"
)

const testCUFE = "abc123"

func submitResponse(statusCode, message, trackingID string) string {
	return fmt.Sprintf(`<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <SendNominaElectronicaResponse xmlns="http://wcf.dian.colombia">
      <SendNominaElectronicaResult>
        <StatusCode>%s</StatusCode>
        <StatusMessage>%s</StatusMessage>
        <XmlDocumentKey>%s</XmlDocumentKey>
      </SendNominaElectronicaResult>
    </SendNominaElectronicaResponse>
  </s:Body>
</s:Envelope>`, statusCode, message, trackingID)
}

const faultResponse = `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <s:Fault>
      <faultcode>s:Client</faultcode>
      <faultstring>Certificado no autorizado</faultstring>
    </s:Fault>
  </s:Body>
</s:Envelope>`

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := Config{
		BaseURL:     server.URL,
		TestSetID:   "test-set-1",
		MaxAttempts: 1,
		RetryDelay:  time.Millisecond,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	client, err := New(cfg, WithHTTPClient(server.Client()))
	require.NoError(t, err)
	return client
}

func TestSubmitAccepted(t *testing.T) {
	var gotAction atomic.Value
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAction.Store(r.Header.Get("SOAPAction"))
		fmt.Fprint(w, submitResponse("00", "Procesado correctamente", "track-001"))
	})

	receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)

	assert.True(t, receipt.Success)
	assert.Equal(t, "00", receipt.StatusCode)
	assert.Equal(t, "track-001", receipt.TrackingID)
	assert.Equal(t, actionSubmit, gotAction.Load())
}

func TestSubmitPendingValidationIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, submitResponse("66", "En proceso de validación", "track-066"))
	})

	receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "66", receipt.StatusCode)
}

func TestSubmitRejectionCodes(t *testing.T) {
	for _, code := range []string{"01", "90", "99"} {
		t.Run("code "+code, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, submitResponse(code, "Documento con errores", ""))
			})

			receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
			require.NoError(t, err)
			assert.False(t, receipt.Success)
			assert.Equal(t, code, receipt.StatusCode)
			assert.Equal(t, "Documento con errores", receipt.StatusMessage)
		})
	}
}

func TestSubmitSOAPFault(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, faultResponse)
	})

	receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)
	assert.False(t, receipt.Success)
	assert.Equal(t, "FAULT", receipt.StatusCode)
	assert.Equal(t, "Certificado no autorizado", receipt.StatusMessage)
}

func TestSubmitEnvelopeShape(t *testing.T) {
	var captured []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, submitResponse("00", "ok", "track"))
	})

	signedXML := "<NominaIndividual>firmado</NominaIndividual>"
	_, err := client.Submit(context.Background(), signedXML, testCUFE)
	require.NoError(t, err)

	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(captured))

	fileName := doc.FindElement("//wcf:fileName")
	require.NotNil(t, fileName)
	assert.Equal(t, testCUFE+".xml", fileName.Text())

	content := doc.FindElement("//wcf:contentFile")
	require.NotNil(t, content)
	decoded, err := base64.StdEncoding.DecodeString(content.Text())
	require.NoError(t, err)
	assert.Equal(t, signedXML, string(decoded))

	testSet := doc.FindElement("//wcf:testSetId")
	require.NotNil(t, testSet)
	assert.Equal(t, "test-set-1", testSet.Text())
}

func TestSubmitOmitsTestSetInProduction(t *testing.T) {
	var captured []byte
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		fmt.Fprint(w, submitResponse("00", "ok", "track"))
	}, func(cfg *Config) { cfg.TestSetID = "" })

	_, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)
	assert.NotContains(t, string(captured), "testSetId")
}

func TestSubmitRetriesTransportErrors(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection to force a transport error.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, submitResponse("00", "ok", "track-retry"))
	}, func(cfg *Config) { cfg.MaxAttempts = 3 })

	receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSubmitExhaustedRetriesReturnTransportError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hj, ok := w.(http.Hijacker)
		require.True(t, ok)
		conn, _, err := hj.Hijack()
		require.NoError(t, err)
		conn.Close()
	}, func(cfg *Config) { cfg.MaxAttempts = 2 })

	_, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))
}

func TestSubmitRecoversAfterCircuitCooldown(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if failing.Load() {
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		fmt.Fprint(w, submitResponse("00", "ok", "track-recovered"))
	}))
	t.Cleanup(server.Close)

	now := time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)
	breaker := circuit.New("authority",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(30*time.Second),
		circuit.WithClock(func() time.Time { return now }))

	client, err := New(Config{
		BaseURL:     server.URL,
		TestSetID:   "test-set-1",
		MaxAttempts: 1,
		RetryDelay:  time.Millisecond,
	}, WithHTTPClient(server.Client()), WithBreaker(breaker))
	require.NoError(t, err)

	// Two transport failures open the circuit.
	_, err = client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.Error(t, err)
	_, err = client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.Error(t, err)
	assert.True(t, breaker.IsOpen())

	// While open, calls are refused without touching the endpoint, even
	// though the server has recovered.
	failing.Store(false)
	before := hits.Load()
	_, err = client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTransport))
	assert.Equal(t, before, hits.Load())

	// Once the cool-down elapses, a trial call goes through and the
	// circuit closes again.
	now = now.Add(30 * time.Second)
	receipt, err := client.Submit(context.Background(), "<NominaIndividual/>", testCUFE)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "track-recovered", receipt.TrackingID)
	assert.Equal(t, circuit.StateClosed, breaker.State())
}

func TestQueryStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, actionStatus, r.Header.Get("SOAPAction"))
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body>
    <GetStatusResponse xmlns="http://wcf.dian.colombia">
      <GetStatusResult>
        <Status>Procesado</Status>
        <StatusCode>00</StatusCode>
        <StatusMessage>Documento validado</StatusMessage>
      </GetStatusResult>
    </GetStatusResponse>
  </s:Body>
</s:Envelope>`)
	})

	result, err := client.QueryStatus(context.Background(), "track-001")
	require.NoError(t, err)
	assert.Equal(t, "Procesado", result.Status)
	assert.Equal(t, "00", result.StatusCode)
	assert.Equal(t, "Documento validado", result.StatusMessage)
}

func TestQueryStatusRequiresTrackingID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	_, err := client.QueryStatus(context.Background(), "")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
}
