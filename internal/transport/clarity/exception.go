package clarity

import (
	"bytes"
	"encoding/xml"
	"net/http"
	"strings"

	"github.com/kailas-cloud/clarityreplay/internal/domain"
)

// ExceptionNamespace is the namespace of Clarity exception documents.
const ExceptionNamespace = "http://genologics.com/ri/exception"

type exceptionXML struct {
	XMLName          xml.Name `xml:"exception"`
	Category         string   `xml:"category,attr,omitempty"`
	Code             string   `xml:"code,attr,omitempty"`
	Message          string   `xml:"message"`
	SuggestedActions string   `xml:"suggested-actions,omitempty"`
}

// ParseException turns an error response into a ClarityError. Bodies that
// are not exception documents keep their text as the message.
func ParseException(status int, body []byte) *domain.ClarityError {
	ce := &domain.ClarityError{Status: status}
	var exc exceptionXML
	if err := xml.Unmarshal(body, &exc); err == nil && exc.XMLName.Local == "exception" {
		ce.Code = exc.Code
		ce.Message = strings.TrimSpace(exc.Message)
		ce.Suggestion = strings.TrimSpace(exc.SuggestedActions)
	} else {
		ce.Message = strings.TrimSpace(string(body))
	}
	if ce.Message == "" {
		ce.Message = http.StatusText(status)
	}
	return ce
}

// EncodeException renders e as a Clarity exception document.
func EncodeException(e *domain.ClarityError) []byte {
	category := "Unknown"
	switch {
	case e.Status == http.StatusNotFound:
		category = "NotFound"
	case e.Status >= 400 && e.Status < 500:
		category = "Bad Request"
	case e.Status >= 500:
		category = "Server Error"
	}
	exc := exceptionXML{
		XMLName:          xml.Name{Space: ExceptionNamespace, Local: "exception"},
		Category:         category,
		Code:             e.Code,
		Message:          e.Message,
		SuggestedActions: e.Suggestion,
	}
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	// exceptionXML holds only strings; encoding cannot fail.
	_ = xml.NewEncoder(&buf).Encode(exc)
	buf.WriteByte('\n')
	return buf.Bytes()
}
