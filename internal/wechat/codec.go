// Package wechat decodes inbound webhook envelopes and encodes passive reply
// envelopes in the platform's XML format.
package wechat

import (
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	// MsgTypeText is the only message type the relay answers with generated text.
	MsgTypeText = "text"

	// Acknowledge is the platform's generic "received, nothing to reply" body.
	Acknowledge = "success"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

// InboundMessage is the subset of an inbound envelope the relay cares about.
type InboundMessage struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName"`
	FromUserName string   `xml:"FromUserName"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType"`
	Content      string   `xml:"Content"`
	MsgID        int64    `xml:"MsgId"`
}

// SenderID is the platform user that sent the message.
func (m *InboundMessage) SenderID() string { return m.FromUserName }

// RecipientID is the account the message was sent to.
func (m *InboundMessage) RecipientID() string { return m.ToUserName }

func (m *InboundMessage) IsText() bool { return m.MsgType == MsgTypeText }

type replyEnvelope struct {
	XMLName      xml.Name `xml:"xml"`
	ToUserName   string   `xml:"ToUserName,cdata"`
	FromUserName string   `xml:"FromUserName,cdata"`
	CreateTime   int64    `xml:"CreateTime"`
	MsgType      string   `xml:"MsgType,cdata"`
	Content      string   `xml:"Content,cdata"`
}

// Decode parses raw into an InboundMessage. Sender, recipient and message type
// must all be present.
func Decode(raw []byte) (*InboundMessage, error) {
	var msg InboundMessage
	if err := xml.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}

	switch {
	case msg.FromUserName == "":
		return nil, fmt.Errorf("%w: missing FromUserName", ErrMalformedEnvelope)
	case msg.ToUserName == "":
		return nil, fmt.Errorf("%w: missing ToUserName", ErrMalformedEnvelope)
	case msg.MsgType == "":
		return nil, fmt.Errorf("%w: missing MsgType", ErrMalformedEnvelope)
	}

	return &msg, nil
}

// Encode renders a text reply. senderID is the user who wrote to us and becomes
// the reply's destination; recipientID is our account and becomes its origin.
// String fields are CDATA so reply text is carried verbatim, minus characters
// XML cannot represent at all.
func Encode(senderID, recipientID, reply string, ts time.Time) ([]byte, error) {
	env := replyEnvelope{
		ToUserName:   xmlSafe(senderID),
		FromUserName: xmlSafe(recipientID),
		CreateTime:   ts.Unix(),
		MsgType:      MsgTypeText,
		Content:      xmlSafe(reply),
	}

	out, err := xml.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}

	return out, nil
}

// xmlSafe drops runes outside the XML 1.0 Char production. CDATA is written
// raw, so these would otherwise make the envelope ill-formed. Invalid UTF-8
// becomes U+FFFD.
func xmlSafe(s string) string {
	return strings.Map(func(r rune) rune {
		if isXMLChar(r) {
			return r
		}
		return -1
	}, s)
}

func isXMLChar(r rune) bool {
	switch {
	case r == 0x09 || r == 0x0A || r == 0x0D:
		return true
	case r >= 0x20 && r <= 0xD7FF:
		return true
	case r >= 0xE000 && r <= 0xFFFD:
		return true
	case r >= 0x10000 && r <= 0x10FFFF:
		return true
	}
	return false
}
