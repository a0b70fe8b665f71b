package utils

import (
	"bytes"
	"crypto/md5"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"cshop/src/types"

	"github.com/gosimple/slug"
	"github.com/yeqown/go-qrcode"
)

func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// DerivedTransactionID builds a settlement reference for orders that never
// touch the acquirer, such as cash and pay on delivery.
func DerivedTransactionID(orderId uint, method types.PaymentMethod) string {
	seed := fmt.Sprintf("%d:%s:%d", orderId, method, time.Now().UnixNano())
	return MD5Hex([]byte(seed))
}

// QRCodePNGBase64 renders the payload as a PNG and returns it base64 encoded
// for inline display in the storefront.
func QRCodePNGBase64(payload string) (string, error) {
	qrc, err := qrcode.New(payload, qrcode.WithBuiltinImageEncoder(qrcode.PNG_FORMAT))
	if err != nil {
		log.Printf("Error building QR code: %s\n", err.Error())
		return "", err
	}
	var buf bytes.Buffer
	if err := qrc.SaveTo(&buf); err != nil {
		log.Printf("Error encoding QR code: %s\n", err.Error())
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func ScreenshotObjectName(orderId uint, filename string) string {
	base := filename
	ext := ""
	if idx := strings.LastIndex(filename, "."); idx >= 0 {
		base = filename[:idx]
		ext = strings.ToLower(filename[idx:])
	}
	return fmt.Sprintf("orders/%d/%s%s", orderId, slug.Make(base), ext)
}

func IsProd() bool {
	return os.Getenv("API_ENV") == "production"
}
