package service

import (
	"bytes"
	"context"
	"fmt"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/worksim/api/internal/client"
	"github.com/worksim/api/internal/model"
	"github.com/worksim/api/internal/store"
)

const (
	profilePhotoSize    = 512
	profilePhotoQuality = 85
)

// ImageGenerator produces an image from a text prompt
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, string, error)
	IsConfigured() bool
}

// PhotoService generates the candidate's profile photo once and stores it
// as a square webp
type PhotoService struct {
	store   store.Store
	images  ImageGenerator
	storage client.StorageClient
	log     *logrus.Logger
}

func NewPhotoService(st store.Store, images ImageGenerator, storage client.StorageClient, log *logrus.Logger) *PhotoService {
	return &PhotoService{store: st, images: images, storage: storage, log: log}
}

func (s *PhotoService) GenerateProfilePhoto(ctx context.Context, req model.ProfilePhotoRequest) (*model.ProfilePhotoResult, error) {
	user, err := s.store.GetUser(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if user.ImageURL != nil && *user.ImageURL != "" {
		return &model.ProfilePhotoResult{Success: true, ImageURL: user.ImageURL}, nil
	}
	if s.images == nil || !s.images.IsConfigured() || s.storage == nil {
		return &model.ProfilePhotoResult{Success: false, Error: "image generation not configured"}, nil
	}

	data, _, err := s.images.GenerateImage(ctx, profilePhotoPrompt(user.Name))
	if err != nil {
		return nil, fmt.Errorf("generate image: %w", err)
	}

	encoded, err := normalizeProfilePhoto(data)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("profile-photos/%s/%s.webp", user.ID, uuid.New().String())
	url, err := s.storage.Upload(ctx, key, bytes.NewReader(encoded), "image/webp")
	if err != nil {
		return nil, fmt.Errorf("upload profile photo: %w", err)
	}
	if err := s.store.UpdateUserImage(ctx, user.ID, url); err != nil {
		return nil, fmt.Errorf("save profile photo: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"assessment_id": req.AssessmentID,
		"user_id":       user.ID,
		"key":           key,
	}).Info("profile photo generated")

	return &model.ProfilePhotoResult{Success: true, ImageURL: &url}, nil
}

// normalizeProfilePhoto center-crops the image to a square and encodes it
// as webp
func normalizeProfilePhoto(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode generated image: %w", err)
	}
	img = imaging.Fill(img, profilePhotoSize, profilePhotoSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Lossless: false, Quality: profilePhotoQuality}); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}

func profilePhotoPrompt(name string) string {
	subject := "a software professional"
	if name != "" {
		subject = fmt.Sprintf("a software professional named %s", name)
	}
	return fmt.Sprintf("A friendly illustrated profile avatar of %s, head and shoulders, "+
		"neutral background, soft lighting, no text.", subject)
}
