package authority

import (
	"encoding/base64"

	"github.com/beevik/etree"
)

// Wire protocol constants for the authority's legacy SOAP service.
const (
	soapNamespace     = "http://schemas.xmlsoap.org/soap/envelope/"
	providerNamespace = "http://wcf.dian.colombia"

	actionSubmit = providerNamespace + "/IWcfDianCustomerServices/SendNominaElectronica"
	actionStatus = providerNamespace + "/IWcfDianCustomerServices/GetStatus"

	opSubmit = "SendNominaElectronica"
	opStatus = "GetStatus"
)

// submitEnvelope wraps a signed document for submission. The file name is
// derived from the content key, the content travels base64-encoded, and the
// test-set identifier is included only when set (test environment).
func submitEnvelope(signedXML, cufe, testSetID string) ([]byte, error) {
	doc, body := newEnvelope()

	op := body.CreateElement("wcf:" + opSubmit)
	op.CreateElement("wcf:fileName").SetText(cufe + ".xml")
	op.CreateElement("wcf:contentFile").SetText(base64.StdEncoding.EncodeToString([]byte(signedXML)))
	if testSetID != "" {
		op.CreateElement("wcf:testSetId").SetText(testSetID)
	}

	return doc.WriteToBytes()
}

// statusEnvelope wraps a tracking-id status query.
func statusEnvelope(trackingID string) ([]byte, error) {
	doc, body := newEnvelope()

	op := body.CreateElement("wcf:" + opStatus)
	op.CreateElement("wcf:trackId").SetText(trackingID)

	return doc.WriteToBytes()
}

func newEnvelope() (*etree.Document, *etree.Element) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	envelope := doc.CreateElement("soap:Envelope")
	envelope.CreateAttr("xmlns:soap", soapNamespace)
	envelope.CreateAttr("xmlns:wcf", providerNamespace)
	envelope.CreateElement("soap:Header")
	body := envelope.CreateElement("soap:Body")
	return doc, body
}
