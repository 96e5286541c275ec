// Package gdrive pushes exported session reports to a Google Drive folder
// using a service account.
package gdrive

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

type Uploader struct {
	service  *drive.Service
	folderID string
	fileIDs  map[string]string
	mu       sync.Mutex
}

func NewUploader(ctx context.Context, credPath, folderID string) (*Uploader, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	svc, err := drive.NewService(ctx, option.WithCredentials(config))
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}

	return &Uploader{
		service:  svc,
		folderID: folderID,
		fileIDs:  make(map[string]string),
	}, nil
}

// Upload creates the named file in the configured folder, or replaces its
// contents when the same name was uploaded before in this process.
func (u *Uploader) Upload(ctx context.Context, name string, r io.Reader) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if fileID, ok := u.fileIDs[name]; ok {
		_, err := u.service.Files.Update(fileID, &drive.File{}).Context(ctx).Media(r).Do()
		if err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		return nil
	}

	doc, err := u.service.Files.Create(&drive.File{
		Name:     name,
		MimeType: "text/csv",
		Parents:  []string{u.folderID},
	}).Context(ctx).Media(r).Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	u.fileIDs[name] = doc.Id
	return nil
}
