package service

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/repository"
	"github.com/sehyun-p/clubsync/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email already registered")
	ErrValidation         = errors.New("validation failed")
)

// FieldViolations enumerates per-field validation failures; it wraps
// ErrValidation so callers can dispatch with errors.Is.
type FieldViolations struct {
	Fields map[string]string
}

func (v *FieldViolations) Error() string {
	parts := make([]string, 0, len(v.Fields))
	for field, msg := range v.Fields {
		parts = append(parts, field+": "+msg)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (v *FieldViolations) Unwrap() error { return ErrValidation }

type RegisterMemberInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Generation int    `json:"generation"`
}

func (in *RegisterMemberInput) validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(in.Name) == "" {
		fields["name"] = "required"
	}
	if !strings.Contains(in.Email, "@") {
		fields["email"] = "must be a valid email address"
	}
	if len(in.Password) < 10 {
		fields["password"] = "must be at least 10 characters"
	}
	if in.Generation < 0 {
		fields["generation"] = "must not be negative"
	}
	if len(fields) > 0 {
		return &FieldViolations{Fields: fields}
	}
	return nil
}

type MemberService struct {
	members   repository.MemberRepository
	jwtMgr    *security.JWTManager
	accessTTL time.Duration
}

func NewMemberService(members repository.MemberRepository, jwtMgr *security.JWTManager, accessTTL time.Duration) *MemberService {
	return &MemberService{members: members, jwtMgr: jwtMgr, accessTTL: accessTTL}
}

func (s *MemberService) Register(in RegisterMemberInput) (*domain.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	if _, err := s.members.FindByEmail(in.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, repository.ErrMemberNotFound) {
		return nil, err
	}
	hash, err := security.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}
	m := &domain.Member{
		Name:         strings.TrimSpace(in.Name),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Generation:   in.Generation,
		Role:         domain.RoleMember,
	}
	if err := s.members.Create(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *MemberService) Login(email, password string) (string, *domain.Member, error) {
	m, err := s.members.FindByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repository.ErrMemberNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !security.CheckPassword(m.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := s.jwtMgr.SignAccessToken(m.ID, string(m.Role), s.accessTTL)
	if err != nil {
		return "", nil, err
	}
	return token, m, nil
}

// KnownEmail reports whether any member is registered under the email.
func (s *MemberService) KnownEmail(email string) (bool, error) {
	_, err := s.members.FindByEmail(strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repository.ErrMemberNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *MemberService) GetByID(id uint) (*domain.Member, error) {
	return s.members.FindByID(id)
}

func (s *MemberService) List(req repository.PageRequest) (repository.PageResult[domain.Member], error) {
	return s.members.List(req)
}

func (s *MemberService) Approve(id uint) error {
	return s.members.Approve(id)
}

func (s *MemberService) CompleteOnboarding(id uint) error {
	return s.members.SetOnboarded(id)
}

func (s *MemberService) UpdateProfile(id uint, name string, generation int) (*domain.Member, error) {
	m, err := s.members.FindByID(id)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) != "" {
		m.Name = strings.TrimSpace(name)
	}
	if generation > 0 {
		m.Generation = generation
	}
	if err := s.members.Update(m); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseMemberID converts a JWT subject back into a member id.
func ParseMemberID(subject string) (uint, error) {
	id, err := strconv.ParseUint(subject, 10, 64)
	if err != nil {
		return 0, errors.New("malformed subject claim")
	}
	return uint(id), nil
}
