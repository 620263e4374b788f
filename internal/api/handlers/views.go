package handlers

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rohits-web03/nimbus/internal/models"
	"github.com/rohits-web03/nimbus/internal/services"
)

type packageView struct {
	ID              uint   `json:"id"`
	Name            string `json:"name"`
	MaxUploadSize   int64  `json:"max_upload_size"`
	MaxStorage      string `json:"max_storage"`
	Price           string `json:"price"`
	AmountWithTax   int64  `json:"amount_with_tax"`
	ChatEnabled     bool   `json:"chat_enabled"`
	ImageGenEnabled bool   `json:"image_gen_enabled"`
}

func newPackageView(p *models.Package) *packageView {
	if p == nil {
		return nil
	}
	return &packageView{
		ID:              p.ID,
		Name:            p.Name,
		MaxUploadSize:   p.MaxUploadSize,
		MaxStorage:      formatMB(p.MaxUploadSize),
		Price:           fmt.Sprintf("%d.%02d", p.PriceCents/100, p.PriceCents%100),
		AmountWithTax:   services.AmountFor(p.PriceCents),
		ChatEnabled:     p.ChatEnabled,
		ImageGenEnabled: p.ImageGenEnabled,
	}
}

type userView struct {
	ID          uuid.UUID    `json:"id"`
	Username    string       `json:"username"`
	Name        string       `json:"name"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Email       string       `json:"email"`
	Phone       string       `json:"phone"`
	PackageName string       `json:"package_name"`
	MaxStorage  string       `json:"max_storage"`
	Chat        bool         `json:"chat"`
	ImgGen      bool         `json:"img_gen"`
	Package     *packageView `json:"package"`
}

func newUserView(u *models.User) userView {
	v := userView{
		ID:        u.ID,
		Username:  u.Username,
		Name:      u.Name(),
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Phone:     u.Phone,
		Package:   newPackageView(u.Package),
	}
	if u.Package != nil {
		v.PackageName = u.Package.Name
		v.MaxStorage = formatMB(u.Package.MaxUploadSize)
		v.Chat = u.Package.ChatEnabled
		v.ImgGen = u.Package.ImageGenEnabled
	}
	return v
}

type fileView struct {
	ID           uuid.UUID  `json:"id"`
	Filename     string     `json:"filename"`
	Size         int64      `json:"size"`
	ContentType  string     `json:"content_type"`
	UploadedAt   time.Time  `json:"uploaded_at"`
	ParentFolder *uuid.UUID `json:"parent_folder"`
	ShareURL     string     `json:"share_url"`
}

type folderView struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	CreatedAt time.Time  `json:"created_at"`
	ShareURL  string     `json:"share_url"`
	Files     []fileView `json:"files"`
}

func (h *Handler) newFileView(f *models.File) fileView {
	return fileView{
		ID:           f.ID,
		Filename:     f.Filename,
		Size:         f.Size,
		ContentType:  f.ContentType,
		UploadedAt:   f.UploadedAt,
		ParentFolder: f.ParentFolderID,
		ShareURL:     h.Config.PublicBaseURL + "/api/v1/share/files/" + f.UniqueLink.String(),
	}
}

func (h *Handler) newFolderView(f *models.Folder) folderView {
	v := folderView{
		ID:        f.ID,
		Name:      f.Name,
		CreatedAt: f.CreatedAt,
		ShareURL:  h.Config.PublicBaseURL + "/api/v1/share/folders/" + f.UniqueLink.String(),
		Files:     make([]fileView, 0, len(f.Files)),
	}
	for i := range f.Files {
		v.Files = append(v.Files, h.newFileView(&f.Files[i]))
	}
	return v
}

type usageView struct {
	services.Usage
	UsedMB      string `json:"used_mb"`
	TotalMB     string `json:"total_mb"`
	RemainingMB string `json:"remaining_mb"`
}

func newUsageView(u services.Usage) usageView {
	return usageView{
		Usage:       u,
		UsedMB:      formatMB(u.UsedBytes),
		TotalMB:     formatMB(u.TotalBytes),
		RemainingMB: formatMB(u.RemainingBytes),
	}
}

func formatMB(bytes int64) string {
	return fmt.Sprintf("%.2f MB", float64(bytes)/(1<<20))
}
