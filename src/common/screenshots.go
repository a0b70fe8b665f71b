package common

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"math"
	"net/http"
	"os"
	"path"
	"time"

	"cshop/src/db"
	awslib "cshop/src/lib/aws"
	"cshop/src/models"
	"cshop/src/types"
	"cshop/src/utils"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObjectStore persists screenshot blobs and returns the stored path.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Delete(ctx context.Context, name string) error
	URL(ctx context.Context, name string) (string, error)
}

type S3ObjectStore struct{}

func (s *S3ObjectStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := awslib.S3UploadScreenshot(ctx, name, data, contentType); err != nil {
		return "", err
	}
	return name, nil
}

func (s *S3ObjectStore) Delete(ctx context.Context, name string) error {
	return awslib.S3DeleteScreenshot(ctx, name)
}

func (s *S3ObjectStore) URL(ctx context.Context, name string) (string, error) {
	u, err := awslib.S3ScreenshotURL(ctx, name)
	if err != nil {
		return "", err
	}
	return *u, nil
}

// LocalObjectStore keeps blobs on disk for development setups without S3.
type LocalObjectStore struct {
	Dir string
}

func (l *LocalObjectStore) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	fpath := path.Join(l.Dir, name)
	if err := os.MkdirAll(path.Dir(fpath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(fpath, data, 0o644); err != nil {
		return "", err
	}
	return fpath, nil
}

func (l *LocalObjectStore) Delete(ctx context.Context, name string) error {
	// Put returns the on-disk path, so name already carries Dir.
	return os.Remove(name)
}

func (l *LocalObjectStore) URL(ctx context.Context, name string) (string, error) {
	return name, nil
}

// ScreenshotRecords tracks uploaded proofs by image hash.
type ScreenshotRecords interface {
	FindByHash(hash string) (*models.OrderScreenshot, error)
	Upsert(rec *models.OrderScreenshot) error
}

type GormScreenshotRecords struct{}

func (r *GormScreenshotRecords) FindByHash(hash string) (*models.OrderScreenshot, error) {
	gdb := db.GetDb()
	var rec models.OrderScreenshot
	err := gdb.
		Where(&models.OrderScreenshot{ImageHash: hash}).
		First(&rec).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *GormScreenshotRecords) Upsert(rec *models.OrderScreenshot) error {
	gdb := db.GetDb()
	return gdb.Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}, {Name: "image_hash"}},
			DoUpdates: clause.AssignmentColumns([]string{"file_path", "uploaded_at", "verification_score"}),
		}).Create(rec).Error
	})
}

// ScreenshotVerifier accepts payment proof uploads, scores them against a few
// fraud heuristics and stores the blob. A proof that carries the order's own
// transaction reference also settles the payment.
type ScreenshotVerifier struct {
	orders      OrderStore
	records     ScreenshotRecords
	objects     ObjectStore
	coordinator *Coordinator

	MaxBytes  int64
	RejectMin float64
}

func NewScreenshotVerifier(orders OrderStore, records ScreenshotRecords, objects ObjectStore, coordinator *Coordinator, maxBytes int64, rejectMin float64) *ScreenshotVerifier {
	return &ScreenshotVerifier{
		orders:      orders,
		records:     records,
		objects:     objects,
		coordinator: coordinator,
		MaxBytes:    maxBytes,
		RejectMin:   rejectMin,
	}
}

type ScreenshotResult struct {
	Path      string                   `json:"path"`
	Score     float64                  `json:"score"`
	Status    types.VerificationStatus `json:"status"`
	Completed bool                     `json:"completed"`
}

// Submit runs the whole proof pipeline for one upload. claimedAmount is
// what the customer says they paid; zero means they did not say.
func (v *ScreenshotVerifier) Submit(ctx context.Context, orderId uint, filename string, data []byte, claimedTxn string, claimedAmount float64) (*ScreenshotResult, error) {
	if int64(len(data)) > v.MaxBytes {
		return nil, ErrFileTooLarge
	}
	contentType := http.DetectContentType(data)
	if contentType != "image/png" && contentType != "image/jpeg" {
		return nil, ErrUnsupportedType
	}
	order, err := v.orders.GetOrder(orderId)
	if err != nil {
		return nil, err
	}
	if order.Status.Terminal() {
		return nil, ErrOrderNotEligible
	}
	hash := utils.MD5Hex(data)
	existing, err := v.records.FindByHash(hash)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if existing != nil && existing.OrderID != orderId {
		return nil, ErrDuplicateImage
	}
	score, reasons := scoreScreenshot(data, order, claimedAmount)
	if score < v.RejectMin {
		rec := &models.OrderScreenshot{
			OrderID:           orderId,
			ImageHash:         hash,
			UploadedAt:        time.Now(),
			VerificationScore: score,
		}
		if rerr := v.records.Upsert(rec); rerr != nil {
			log.Printf("Error recording rejected screenshot for order %d: %s\n", orderId, rerr.Error())
		}
		if aerr := v.orders.AttachScreenshot(orderId, "", types.VERIFICATION_REJECTED); aerr != nil {
			log.Printf("Error attaching rejected screenshot to order %d: %s\n", orderId, aerr.Error())
		}
		return nil, &FraudError{Score: score, Reasons: reasons}
	}
	name := utils.ScreenshotObjectName(orderId, filename)
	storedPath, err := v.objects.Put(ctx, name, data, contentType)
	if err != nil {
		return nil, err
	}
	rec := &models.OrderScreenshot{
		OrderID:           orderId,
		ImageHash:         hash,
		FilePath:          storedPath,
		UploadedAt:        time.Now(),
		VerificationScore: score,
	}
	if err := v.records.Upsert(rec); err != nil {
		return nil, err
	}
	if err := v.orders.AttachScreenshot(orderId, storedPath, types.VERIFICATION_VERIFIED); err != nil {
		return nil, err
	}
	if prev := order.PaymentScreenshotPath; prev != nil && *prev != "" && *prev != storedPath {
		if derr := v.objects.Delete(ctx, *prev); derr != nil {
			log.Printf("Error deleting replaced screenshot %s for order %d: %s\n", *prev, orderId, derr.Error())
		}
	}
	result := &ScreenshotResult{
		Path:   storedPath,
		Score:  score,
		Status: types.VERIFICATION_VERIFIED,
	}
	// Settle only when the proof names the transaction this order is
	// actually waiting on. Anything else stays with staff review.
	if claimedTxn != "" && order.TransactionID != "" && claimedTxn == order.TransactionID {
		err := v.coordinator.PaymentObserved(ctx, orderId, "", claimedTxn, types.SOURCE_SCREENSHOT)
		if err == nil {
			result.Completed = true
		} else if !errors.Is(err, ErrAlreadyAdvanced) {
			log.Printf("Error settling order %d from screenshot: %s\n", orderId, err.Error())
		}
	}
	return result, nil
}

// ViewURL returns a link to the stored proof for staff review. For S3 the
// link is presigned and short-lived.
func (v *ScreenshotVerifier) ViewURL(ctx context.Context, orderId uint) (string, error) {
	order, err := v.orders.GetOrder(orderId)
	if err != nil {
		return "", err
	}
	if order.PaymentScreenshotPath == nil || *order.PaymentScreenshotPath == "" {
		return "", ErrNotFound
	}
	return v.objects.URL(ctx, *order.PaymentScreenshotPath)
}

// scoreScreenshot runs cheap plausibility checks on the image bytes plus the
// order the proof claims to cover. Scores are additive weights in [0,1]; the
// caller decides the cutoff. A non-decoding upload scores zero outright.
func scoreScreenshot(data []byte, order *models.Order, claimedAmount float64) (float64, []string) {
	score := 0.0
	reasons := []string{}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		reasons = append(reasons, "image does not decode")
		return score, reasons
	}
	score += 0.4
	if cfg.Width >= 200 && cfg.Height >= 200 {
		score += 0.15
	} else {
		reasons = append(reasons, "image too small for a payment screenshot")
	}
	if cfg.Width > 0 && cfg.Height > 0 {
		ratio := float64(cfg.Width) / float64(cfg.Height)
		if ratio > 4 || ratio < 0.25 {
			reasons = append(reasons, "implausible aspect ratio")
		} else {
			score += 0.1
		}
	}
	if len(data) >= 10<<10 {
		score += 0.1
	} else {
		reasons = append(reasons, "file too small to hold a real capture")
	}
	if claimedAmount > 0 {
		if math.Abs(claimedAmount-order.TotalAmount) < 0.01 {
			score += 0.15
		} else {
			reasons = append(reasons, "claimed amount does not match the order total")
		}
	}
	placed := order.OrderDate
	if placed.IsZero() {
		placed = order.CreatedAt
	}
	if !placed.IsZero() {
		if time.Since(placed) <= 24*time.Hour {
			score += 0.1
		} else {
			reasons = append(reasons, "proof uploaded long after the order was placed")
		}
	}
	return score, reasons
}
