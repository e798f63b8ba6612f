package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/noah-isme/smart-attendance-api/pkg/storage"
)

var studentIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

type blobStore interface {
	Save(name string, data []byte) error
	Read(name string) ([]byte, error)
	Exists(name string) (bool, error)
	Delete(name string) error
}

// TemplateRepository stores enrolled face templates as PNG blobs keyed by student id.
type TemplateRepository struct {
	store blobStore
}

// NewTemplateRepository constructs the repository on top of a blob store.
func NewTemplateRepository(store blobStore) *TemplateRepository {
	return &TemplateRepository{store: store}
}

func templateName(studentID string) (string, error) {
	if !studentIDPattern.MatchString(studentID) {
		return "", fmt.Errorf("%w %q", ErrInvalidStudentID, studentID)
	}
	return "templates/" + studentID + ".png", nil
}

// Get returns the template or ErrTemplateNotFound.
func (r *TemplateRepository) Get(ctx context.Context, studentID string) ([]byte, error) {
	name, err := templateName(studentID)
	if err != nil {
		return nil, ErrTemplateNotFound
	}
	data, err := r.store.Read(name)
	if err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil, ErrTemplateNotFound
		}
		return nil, err
	}
	return data, nil
}

// Save replaces the student's template.
func (r *TemplateRepository) Save(ctx context.Context, studentID string, template []byte) error {
	name, err := templateName(studentID)
	if err != nil {
		return err
	}
	return r.store.Save(name, template)
}

// Exists reports whether the student has enrolled.
func (r *TemplateRepository) Exists(ctx context.Context, studentID string) (bool, error) {
	name, err := templateName(studentID)
	if err != nil {
		return false, nil
	}
	return r.store.Exists(name)
}

// Delete removes the student's template.
func (r *TemplateRepository) Delete(ctx context.Context, studentID string) error {
	name, err := templateName(studentID)
	if err != nil {
		return err
	}
	return r.store.Delete(name)
}
