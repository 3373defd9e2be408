package handlers

import (
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"agency-backend/internal/apperr"
)

// imageURLPrefix is where uploaded files are served from.
const imageURLPrefix = "/images/"

const maxImageSize = 5 << 20

var allowedImageExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// saveImage stores file under dir and returns its public URL. Rejected files
// are reported as bad requests.
func saveImage(dir string, file *multipart.FileHeader) (string, error) {
	extension := strings.ToLower(filepath.Ext(file.Filename))
	if extension == "" {
		return "", apperr.BadRequest("image file extension is required")
	}
	if _, ok := allowedImageExtensions[extension]; !ok {
		return "", apperr.BadRequest("unsupported image type: " + extension)
	}
	if file.Size > maxImageSize {
		return "", apperr.BadRequest("image file too large (max 5MB)")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[UPLOAD] saveImage: failed to create directory %s: %v", dir, err)
		return "", apperr.Internal("image storage failed", err)
	}

	filename := uuid.NewString() + extension
	fullPath := filepath.Join(dir, filename)

	out, err := os.Create(fullPath)
	if err != nil {
		log.Printf("[UPLOAD] saveImage: failed to create file %s: %v", fullPath, err)
		return "", apperr.Internal("image storage failed", err)
	}
	defer out.Close()

	in, err := file.Open()
	if err != nil {
		log.Printf("[UPLOAD] saveImage: failed to open upload %s: %v", file.Filename, err)
		return "", apperr.BadRequest("image upload could not be read")
	}
	defer in.Close()

	if _, err := io.Copy(out, in); err != nil {
		log.Printf("[UPLOAD] saveImage: failed to save file %s: %v", fullPath, err)
		_ = os.Remove(fullPath)
		return "", apperr.Internal("image storage failed", err)
	}

	log.Printf("[UPLOAD] saveImage: stored %s", fullPath)
	return imageURLPrefix + filename, nil
}

// safeDeleteUpload removes a file previously returned by saveImage. URLs
// that do not point into dir are refused; a missing file is not an error.
func safeDeleteUpload(dir, imageURL string) error {
	trimmed := strings.TrimSpace(imageURL)
	if trimmed == "" {
		return nil
	}
	if !strings.HasPrefix(trimmed, imageURLPrefix) {
		return fmt.Errorf("refusing to delete non-upload path: %s", imageURL)
	}

	name := path.Base(path.Clean(trimmed))
	if name == "." || name == "/" || name == ".." {
		return fmt.Errorf("refusing to delete path: %s", imageURL)
	}

	cleanBase := filepath.Clean(dir)
	cleanTarget := filepath.Clean(filepath.Join(cleanBase, name))
	if !strings.HasPrefix(cleanTarget, cleanBase+string(os.PathSeparator)) {
		return fmt.Errorf("refusing to delete path outside upload dir: %s", imageURL)
	}

	if err := os.Remove(cleanTarget); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return nil
}
