package file

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // Import for PNG decoding support
	"io"
	"math"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cmlabs-hris/hris-attendance-go/internal/domain/attendance"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/storage"
	"github.com/cmlabs-hris/hris-attendance-go/internal/pkg/validator"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/image/draw"
)

const (
	proofMaxBytes = 150 * 1024
	proofMinBytes = 50 * 1024
	digestBytes   = 16
)

type FileService interface {
	// UploadAttendanceProof stores the proof photo of one clock event and returns its storage key.
	UploadAttendanceProof(ctx context.Context, employeeID string, date time.Time, action attendance.Action, file io.Reader, filename string) (string, error)

	DeleteFile(ctx context.Context, path string) error
	GetFileURL(ctx context.Context, path string, expiry time.Duration) (string, error)
}

type fileServiceImpl struct {
	storage storage.FileStorage
}

func NewFileService(storage storage.FileStorage) FileService {
	return &fileServiceImpl{
		storage: storage,
	}
}

// UploadAttendanceProof compresses the photo to 50KB - 150KB and stores it as JPEG under
// attendance/{employeeID}/{date}/{action}-{digest}.jpg. Identical photos map to the same key.
func (s *fileServiceImpl) UploadAttendanceProof(ctx context.Context, employeeID string, date time.Time, action attendance.Action, file io.Reader, filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if !validator.IsInSlice(ext, []string{".jpg", ".jpeg", ".png"}) {
		return "", fmt.Errorf("invalid file type: only jpg, jpeg, png allowed")
	}

	buffer, err := io.ReadAll(io.LimitReader(file, attendance.MaxProofPhotoSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	if len(buffer) > attendance.MaxProofPhotoSize {
		return "", fmt.Errorf("attendance proof photo size must not exceed 10MB")
	}

	compressed, err := compressImage(buffer, proofMaxBytes, proofMinBytes)
	if err != nil {
		return "", fmt.Errorf("failed to compress image: %w", err)
	}

	key := proofKey(employeeID, date, action, compressed)

	uploadedPath, err := s.storage.Upload(ctx, bytes.NewReader(compressed), key, "image/jpeg")
	if err != nil {
		return "", fmt.Errorf("failed to upload attendance proof: %w", err)
	}

	return uploadedPath, nil
}

// DeleteFile deletes a file
func (s *fileServiceImpl) DeleteFile(ctx context.Context, path string) error {
	return s.storage.Delete(ctx, path)
}

// GetFileURL generates URL to access file
func (s *fileServiceImpl) GetFileURL(ctx context.Context, path string, expiry time.Duration) (string, error) {
	return s.storage.GetURL(ctx, path, expiry)
}

func proofKey(employeeID string, date time.Time, action attendance.Action, data []byte) string {
	sum, _ := blake2b.New(digestBytes, nil)
	sum.Write(data)
	name := fmt.Sprintf("%s-%s.jpg", strings.ReplaceAll(string(action), "-", "_"), hex.EncodeToString(sum.Sum(nil)))
	return path.Join("attendance", employeeID, date.Format("2006-01-02"), name)
}

// ==================== HELPER FUNCTIONS ====================

// compressImage re-encodes an image as JPEG aiming for minSize..maxSize bytes.
// JPEG input already inside the range is kept as is.
func compressImage(buffer []byte, maxSize int, minSize int) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(buffer))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	if format == "jpeg" && len(buffer) <= maxSize && len(buffer) >= minSize {
		return buffer, nil
	}

	bounds := img.Bounds()
	originalWidth := bounds.Dx()
	originalHeight := bounds.Dy()

	// Start with quality 85 and reduce progressively
	quality := 85
	var compressed []byte

	for quality >= 50 {
		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("failed to encode JPEG: %w", err)
		}
		compressed = buf.Bytes()

		if len(compressed) <= maxSize {
			return compressed, nil
		}
		quality -= 5
	}

	// Still too large: scale towards 100KB keeping the aspect ratio.
	targetSize := 100 * 1024
	ratio := math.Sqrt(float64(targetSize) / float64(len(compressed)))
	newWidth := max(int(float64(originalWidth)*ratio), min(originalWidth, 600))
	newHeight := originalHeight * newWidth / originalWidth

	resized := resizeImage(img, newWidth, newHeight)

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, resized, &jpeg.Options{Quality: 70}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}

	return buf.Bytes(), nil
}

// resizeImage resizes an image to the specified dimensions using high-quality interpolation
func resizeImage(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)
	return dst
}
