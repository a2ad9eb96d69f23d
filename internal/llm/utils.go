package llm

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kousskous/menu-extractor/constants"
)

// ReadAsDataURL loads a page image as a base64 data URL for a vision request.
// Images above maxMB are refused rather than silently truncated.
func ReadAsDataURL(path string, maxMB int) (string, error) {
	if maxMB <= 0 {
		maxMB = constants.MaxImageMBDefault
	}
	st, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if st.Size() > int64(maxMB)*1024*1024 {
		return "", fmt.Errorf("image %s is %d bytes, over the %d MB vision limit", filepath.Base(path), st.Size(), maxMB)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	mt := constants.MimeForExt(filepath.Ext(path))
	return "data:" + mt + ";base64," + base64.StdEncoding.EncodeToString(b), nil
}
