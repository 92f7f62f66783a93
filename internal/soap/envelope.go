// Package soap builds and parses the fixed SOAP 1.1 envelope used to call
// Microsoft's GetFederationInformation autodiscover action.
package soap

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/sentri-project/sentri/internal/domain"
)

// AutodiscoverURL is the single endpoint sentri ever calls.
const AutodiscoverURL = "https://autodiscover-s.outlook.com/autodiscover/autodiscover.svc"

// SOAPAction is the fixed SOAPAction header value for GetFederationInformation.
const SOAPAction = "http://schemas.microsoft.com/exchange/2010/Autodiscover/Autodiscover/GetFederationInformation"

const envelopeTemplate = `<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:exm="http://schemas.microsoft.com/exchange/services/2006/messages"
    xmlns:ext="http://schemas.microsoft.com/exchange/services/2006/types"
    xmlns:a="http://www.w3.org/2005/08/addressing"
    xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"
    xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance"
    xmlns:xsd="http://www.w3.org/2001/XMLSchema">
<soap:Header>
    <a:RequestedServerVersion>Exchange2010</a:RequestedServerVersion>
    <a:MessageID>urn:uuid:%s</a:MessageID>
    <a:Action soap:mustUnderstand="1">%s</a:Action>
    <a:To soap:mustUnderstand="1">%s</a:To>
    <a:ReplyTo>
        <a:Address>http://www.w3.org/2005/08/addressing/anonymous</a:Address>
    </a:ReplyTo>
</soap:Header>
<soap:Body>
    <GetFederationInformationRequestMessage xmlns="http://schemas.microsoft.com/exchange/2010/Autodiscover">
        <Request>
            <Domain>%s</Domain>
        </Request>
    </GetFederationInformationRequestMessage>
</soap:Body>
</soap:Envelope>`

// BuildRequest renders the GetFederationInformation SOAP envelope for d,
// stamping a fresh message ID on every call.
func BuildRequest(d domain.Domain) []byte {
	messageID := uuid.NewString()
	return []byte(fmt.Sprintf(envelopeTemplate, messageID, SOAPAction, AutodiscoverURL, d.String()))
}
