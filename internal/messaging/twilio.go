package messaging

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

const whatsAppPrefix = "whatsapp:"

// ValidateTwilioSignature checks X-Twilio-Signature against the HMAC-SHA1 of
// webhookURL followed by the sorted form parameters.
func ValidateTwilioSignature(r *http.Request, authToken, webhookURL string) bool {
	signature := r.Header.Get("X-Twilio-Signature")
	if signature == "" {
		return false
	}
	if err := r.ParseForm(); err != nil {
		return false
	}
	expected := computeSignature(buildSignaturePayload(webhookURL, r.PostForm), authToken)
	return hmac.Equal([]byte(signature), []byte(expected))
}

func buildSignaturePayload(webhookURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var payload strings.Builder
	payload.WriteString(webhookURL)
	for _, key := range keys {
		for _, value := range params[key] {
			payload.WriteString(key)
			payload.WriteString(value)
		}
	}
	return payload.String()
}

func computeSignature(data, key string) string {
	h := hmac.New(sha1.New, []byte(key))
	h.Write([]byte(data))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// InboundMessage is the subset of a Twilio WhatsApp webhook we act on.
type InboundMessage struct {
	MessageSid string
	From       string
	To         string
	Body       string
}

// ParseInboundMessage reads the form body and strips whatsapp: prefixes from
// the addresses.
func ParseInboundMessage(r *http.Request) (InboundMessage, error) {
	if err := r.ParseForm(); err != nil {
		return InboundMessage{}, fmt.Errorf("messaging: parse form: %w", err)
	}
	return InboundMessage{
		MessageSid: r.PostForm.Get("MessageSid"),
		From:       StripWhatsApp(r.PostForm.Get("From")),
		To:         StripWhatsApp(r.PostForm.Get("To")),
		Body:       strings.TrimSpace(r.PostForm.Get("Body")),
	}, nil
}

// StripWhatsApp removes the channel prefix Twilio puts on addresses.
func StripWhatsApp(addr string) string {
	addr = strings.TrimSpace(addr)
	if len(addr) >= len(whatsAppPrefix) && strings.EqualFold(addr[:len(whatsAppPrefix)], whatsAppPrefix) {
		return addr[len(whatsAppPrefix):]
	}
	return addr
}

func withWhatsApp(addr string) string {
	return whatsAppPrefix + StripWhatsApp(addr)
}
