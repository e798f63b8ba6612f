package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/smart-attendance-api/internal/dto"
	"github.com/noah-isme/smart-attendance-api/internal/repository"
	appErrors "github.com/noah-isme/smart-attendance-api/pkg/errors"
	"github.com/noah-isme/smart-attendance-api/pkg/face"
)

type templateWriter interface {
	Save(ctx context.Context, studentID string, template []byte) error
	Exists(ctx context.Context, studentID string) (bool, error)
}

// FaceTemplateService enrols reference images used by the face step.
type FaceTemplateService struct {
	templates templateWriter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

func NewFaceTemplateService(templates templateWriter, validate *validator.Validate, logger *zap.Logger) *FaceTemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &FaceTemplateService{templates: templates, validator: validate, logger: logger, now: time.Now}
}

// Register decodes, normalises and stores a student's template, replacing any previous one.
func (s *FaceTemplateService) Register(ctx context.Context, req dto.RegisterTemplateRequest) (*dto.TemplateResponse, error) {
	req.StudentID = strings.TrimSpace(req.StudentID)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}
	raw, err := face.DecodePayload(req.Image)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image is not valid base64")
	}
	normalized, err := face.NormalizeTemplate(raw)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "image could not be decoded")
	}
	if err := s.templates.Save(ctx, req.StudentID, normalized); err != nil {
		if errors.Is(err, repository.ErrInvalidStudentID) {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "student id contains unsupported characters")
		}
		return nil, appErrors.WrapAs(appErrors.ErrTemplateStoreDown, err)
	}
	s.logger.Info("face template enrolled", zap.String("student_id", req.StudentID), zap.Int("bytes", len(normalized)))
	return &dto.TemplateResponse{StudentID: req.StudentID, Enrolled: true, RecordedAt: s.now().UTC()}, nil
}

// Enrolled reports whether the student has a template.
func (s *FaceTemplateService) Enrolled(ctx context.Context, studentID string) (bool, error) {
	ok, err := s.templates.Exists(ctx, studentID)
	if err != nil {
		return false, appErrors.WrapAs(appErrors.ErrTemplateStoreDown, err)
	}
	return ok, nil
}
