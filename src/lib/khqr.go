package lib

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"cshop/src/config"

	"github.com/google/uuid"
)

// EMV merchant-presented-mode tags used by the KHQR payload.
const (
	emvPayloadFormat      = "00"
	emvPointOfInitiation  = "01"
	emvMerchantAccount    = "29"
	emvMerchantCategory   = "52"
	emvTransactionCcy     = "53"
	emvTransactionAmount  = "54"
	emvCountryCode        = "58"
	emvMerchantName       = "59"
	emvMerchantCity       = "60"
	emvAdditionalData     = "62"
	emvCRC                = "63"
	emvBakongAccountSubID = "00"
	emvBillNumberSubID    = "01"
	emvMobileNumberSubID  = "02"
	emvTerminalSubID      = "07"

	mccComputerShop = "5732"
)

type KHQRIssuer struct {
	merchant config.MerchantProfile
}

var khqrIssuer *KHQRIssuer

// GetKHQRIssuer validates the merchant profile on first use. A misconfigured
// merchant is fatal; callers are expected to check this at startup.
func GetKHQRIssuer() (*KHQRIssuer, error) {
	if khqrIssuer != nil {
		return khqrIssuer, nil
	}
	merchant := config.GetMerchantProfile()
	if err := merchant.Validate(); err != nil {
		return nil, fmt.Errorf("merchant misconfigured: %w", err)
	}
	khqrIssuer = &KHQRIssuer{merchant: merchant}
	return khqrIssuer, nil
}

// NewKHQRIssuer replaces the issuer instance with a custom one
func NewKHQRIssuer(i *KHQRIssuer) *KHQRIssuer {
	khqrIssuer = i
	return khqrIssuer
}

func NewKHQRIssuerWithMerchant(m config.MerchantProfile) (*KHQRIssuer, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("merchant misconfigured: %w", err)
	}
	return &KHQRIssuer{merchant: m}, nil
}

type IssuedQR struct {
	Payload     string
	Fingerprint string
	BillNumber  string
}

// Issue builds a dynamic KHQR payload for the given amount and returns it
// together with its MD5 fingerprint and a fresh bill number.
func (i *KHQRIssuer) Issue(amount float64, currency string) (*IssuedQR, error) {
	billNumber := newBillNumber()
	payload, err := i.buildPayload(amount, currency, billNumber)
	if err != nil {
		return nil, err
	}
	sum := md5.Sum([]byte(payload))
	return &IssuedQR{
		Payload:     payload,
		Fingerprint: hex.EncodeToString(sum[:]),
		BillNumber:  billNumber,
	}, nil
}

// Reissue builds a fresh payload and bill number while keeping the supplied
// fingerprint as the acquirer-side identity. Used when a customer cancelled a
// session and returns to pay the same amount: the key the acquirer is polled
// with must not change.
func (i *KHQRIssuer) Reissue(amount float64, currency string, fingerprint string) (*IssuedQR, error) {
	if len(fingerprint) != 32 {
		return nil, fmt.Errorf("invalid fingerprint %q", fingerprint)
	}
	billNumber := newBillNumber()
	payload, err := i.buildPayload(amount, currency, billNumber)
	if err != nil {
		return nil, err
	}
	return &IssuedQR{
		Payload:     payload,
		Fingerprint: strings.ToLower(fingerprint),
		BillNumber:  billNumber,
	}, nil
}

func (i *KHQRIssuer) buildPayload(amount float64, currency string, billNumber string) (string, error) {
	ccy, err := currencyCode(currency)
	if err != nil {
		return "", err
	}
	amt, err := formatAmount(amount, currency)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(emvField(emvPayloadFormat, "01"))
	b.WriteString(emvField(emvPointOfInitiation, "12"))
	b.WriteString(emvField(emvMerchantAccount, emvField(emvBakongAccountSubID, i.merchant.BakongAccountID)))
	b.WriteString(emvField(emvMerchantCategory, mccComputerShop))
	b.WriteString(emvField(emvTransactionCcy, ccy))
	b.WriteString(emvField(emvTransactionAmount, amt))
	b.WriteString(emvField(emvCountryCode, "KH"))
	b.WriteString(emvField(emvMerchantName, i.merchant.Name))
	b.WriteString(emvField(emvMerchantCity, i.merchant.City))

	extra := emvField(emvBillNumberSubID, billNumber)
	if i.merchant.Phone != "" {
		extra += emvField(emvMobileNumberSubID, i.merchant.Phone)
	}
	if i.merchant.TerminalLabel != "" {
		extra += emvField(emvTerminalSubID, i.merchant.TerminalLabel)
	}
	b.WriteString(emvField(emvAdditionalData, extra))

	// CRC covers everything up to and including its own tag+length.
	b.WriteString(emvCRC)
	b.WriteString("04")
	payload := b.String()
	payload += fmt.Sprintf("%04X", crc16ccitt([]byte(payload)))
	return payload, nil
}

func emvField(id string, value string) string {
	return fmt.Sprintf("%s%02d%s", id, len(value), value)
}

// formatAmount pins two fractional digits for USD and zero for KHR.
func formatAmount(amount float64, currency string) (string, error) {
	if amount <= 0 {
		return "", fmt.Errorf("amount must be positive, got %v", amount)
	}
	switch strings.ToUpper(currency) {
	case "USD":
		return strconv.FormatFloat(amount, 'f', 2, 64), nil
	case "KHR":
		return strconv.FormatFloat(amount, 'f', 0, 64), nil
	}
	return "", fmt.Errorf("unsupported currency %q", currency)
}

func currencyCode(currency string) (string, error) {
	switch strings.ToUpper(currency) {
	case "USD":
		return "840", nil
	case "KHR":
		return "116", nil
	}
	return "", fmt.Errorf("unsupported currency %q", currency)
}

// crc16ccitt implements CRC-16/CCITT-FALSE (poly 0x1021, init 0xFFFF) as
// required by the EMV QR spec.
func crc16ccitt(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ 0x1021
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

func newBillNumber() string {
	id := uuid.New()
	hexid := strings.ToUpper(hex.EncodeToString(id[:5]))
	return "INV" + hexid
}
