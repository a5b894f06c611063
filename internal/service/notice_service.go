package service

import (
	"strings"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
)

type NoticeInput struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Pinned bool   `json:"pinned"`
}

func (in *NoticeInput) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Title) == "" {
		fields["title"] = "required"
	}
	if strings.TrimSpace(in.Body) == "" {
		fields["body"] = "required"
	}
	if len(fields) > 0 {
		return &FieldViolations{Fields: fields}
	}
	return nil
}

type NoticeService struct {
	notices repository.NoticeRepository
}

func NewNoticeService(notices repository.NoticeRepository) *NoticeService {
	return &NoticeService{notices: notices}
}

func (s *NoticeService) Create(authorID uint, in NoticeInput) (*domain.Notice, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := &domain.Notice{
		AuthorID: authorID,
		Title:    strings.TrimSpace(in.Title),
		Body:     in.Body,
		Pinned:   in.Pinned,
	}
	if err := s.notices.Create(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NoticeService) Get(id uint) (*domain.Notice, error) {
	return s.notices.FindByID(id)
}

func (s *NoticeService) List(req repository.PageRequest) (repository.PageResult[domain.Notice], error) {
	return s.notices.List(req)
}

func (s *NoticeService) Update(id uint, in NoticeInput) (*domain.Notice, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n, err := s.notices.FindByID(id)
	if err != nil {
		return nil, err
	}
	n.Title = strings.TrimSpace(in.Title)
	n.Body = in.Body
	n.Pinned = in.Pinned
	if err := s.notices.Update(n); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *NoticeService) Delete(id uint) error {
	return s.notices.Delete(id)
}
