package dashboard

import (
	"context"
	"net/http"
	"path"
	"strings"

	"go.uber.org/zap"
)

// MaxLogoSize is the largest accepted logo upload.
const MaxLogoSize = 2 << 20

var logoTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/webp": true,
	"image/gif":  true,
}

// FileUploader attaches a file to a record field.
type FileUploader interface {
	UploadFile(ctx context.Context, collection, id, field, filename string, data []byte, scope Principal) (Record, error)
}

// Profiles manages the one profile row per principal.
type Profiles struct {
	gw    Gateway
	files FileUploader
	log   *zap.Logger
}

// NewProfiles builds the profile service. files may be nil, in which case
// uploads fail with an UploadError.
func NewProfiles(gw Gateway, files FileUploader, log *zap.Logger) *Profiles {
	if log == nil {
		log = zap.NewNop()
	}
	return &Profiles{gw: gw, files: files, log: log}
}

// Ensure returns the principal's profile, creating an empty one on first
// access.
func (p *Profiles) Ensure(ctx context.Context, owner Principal) (Profile, error) {
	rows, err := p.gw.List(ctx, CollectionProfiles, owner, "created")
	if err != nil {
		return Profile{}, err
	}
	if len(rows) > 0 {
		return DecodeProfile(rows[0])
	}
	rec := ProfileRecord(Profile{})
	rec[OwnerField] = string(owner)
	stored, err := p.gw.Insert(ctx, CollectionProfiles, owner, rec)
	if err != nil {
		return Profile{}, err
	}
	p.log.Info("created profile", zap.String("principal", string(owner)), zap.String("id", stored.ID()))
	return DecodeProfile(stored)
}

// Save writes the editable profile fields.
func (p *Profiles) Save(ctx context.Context, owner Principal, prof Profile) (Profile, error) {
	if prof.ID == "" {
		current, err := p.Ensure(ctx, owner)
		if err != nil {
			return Profile{}, err
		}
		prof.ID = current.ID
	}
	stored, err := p.gw.Update(ctx, CollectionProfiles, prof.ID, ProfileRecord(prof), owner)
	if err != nil {
		return Profile{}, err
	}
	return DecodeProfile(stored)
}

// UploadLogo validates data and attaches it as the profile logo. Type and
// size are checked before any network call.
func (p *Profiles) UploadLogo(ctx context.Context, owner Principal, filename string, data []byte) (Profile, error) {
	if _, err := CheckLogo(filename, data); err != nil {
		return Profile{}, err
	}
	if p.files == nil {
		return Profile{}, &UploadError{Reason: "uploads are not available offline"}
	}
	prof, err := p.Ensure(ctx, owner)
	if err != nil {
		return Profile{}, err
	}
	stored, err := p.files.UploadFile(ctx, CollectionProfiles, prof.ID, "logo", path.Base(filename), data, owner)
	if err != nil {
		return Profile{}, err
	}
	return DecodeProfile(stored)
}

// CheckLogo validates a logo upload and returns its sniffed content type.
func CheckLogo(filename string, data []byte) (string, error) {
	if strings.TrimSpace(path.Base(filename)) == "" || path.Base(filename) == "." || path.Base(filename) == "/" {
		return "", &UploadError{Reason: "file name is empty"}
	}
	if len(data) == 0 {
		return "", &UploadError{Reason: "file is empty"}
	}
	if len(data) > MaxLogoSize {
		return "", &UploadError{Reason: "file is larger than 2 MiB"}
	}
	ct := http.DetectContentType(data)
	if !logoTypes[ct] {
		return "", &UploadError{Reason: "unsupported file type " + ct}
	}
	return ct, nil
}

// LogoKey is the storage key of a logo: {principal}/{filename}.
func LogoKey(owner Principal, filename string) string {
	return string(owner) + "/" + path.Base(filename)
}
