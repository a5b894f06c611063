package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sehyun-p/clubsync/internal/domain"
	"github.com/sehyun-p/clubsync/internal/health"
	"github.com/sehyun-p/clubsync/internal/http/handler"
	"github.com/sehyun-p/clubsync/internal/http/middleware"
	"github.com/sehyun-p/clubsync/internal/http/router"
	"github.com/sehyun-p/clubsync/internal/repository"
	"github.com/sehyun-p/clubsync/internal/security"
	"github.com/sehyun-p/clubsync/internal/service"
)

type apiEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// testStack runs the full HTTP surface against sqlite and miniredis.
type testStack struct {
	baseURL   string
	client    *http.Client
	db        *gorm.DB
	redis     *redis.Client
	miniredis *miniredis.Miniredis
	jwtMgr    *security.JWTManager
	finalizer *service.AttendanceFinalizer
	scheduler *service.FinalizeScheduler
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(
		&domain.Member{}, &domain.Session{}, &domain.AttendanceRecord{},
		&domain.ExcuseReport{}, &domain.Notice{}, &domain.PointLog{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	jwtMgr := security.NewJWTManager("iss", "aud", "abcdefghijklmnopqrstuvwxyz123456")

	members := repository.NewMemberRepository(db)
	sessions := repository.NewSessionRepository(db)
	attendance := repository.NewAttendanceRepository(db)
	excuses := repository.NewExcuseRepository(db)
	notices := repository.NewNoticeRepository(db)
	points := repository.NewPointRepository(db)

	pointSvc := service.NewPointService(points)
	memberSvc := service.NewMemberService(members, jwtMgr, time.Hour)
	finalizer := service.NewAttendanceFinalizer(sessions, members, attendance, excuses, pointSvc, nil)
	scheduler := service.NewFinalizeScheduler(finalizer, sessions, nil)
	t.Cleanup(scheduler.Shutdown)
	sessionSvc := service.NewSessionService(sessions, scheduler)
	checkinSvc := service.NewCheckInService(
		service.NewRedisCheckInTokenStore(client, "integ"),
		service.NewOpenSessionResolver(sessions),
		attendance,
		pointSvc,
		nil,
	)

	deps := router.Dependencies{
		AuthHandler:       handler.NewAuthHandler(memberSvc, nil, nil, time.Hour, false),
		MemberHandler:     handler.NewMemberHandler(memberSvc, service.NewRedisAdminListCacheStore(client, "integ")),
		SessionHandler:    handler.NewSessionHandler(sessionSvc, finalizer),
		CheckInHandler:    handler.NewCheckInHandler(checkinSvc),
		AttendanceHandler: handler.NewAttendanceHandler(attendance),
		ExcuseHandler:     handler.NewExcuseHandler(service.NewExcuseService(excuses, sessions, nil)),
		NoticeHandler:     handler.NewNoticeHandler(service.NewNoticeService(notices)),
		PointHandler:      handler.NewPointHandler(pointSvc),
		JWTManager:        jwtMgr,
		Idempotency:       middleware.NewIdempotencyMiddleware(service.NewRedisIdempotencyStore(client, "integ"), time.Minute),
		AuthRateLimitRPM:  1000,
		ScanRateLimitRPM:  1000,
		APIRateLimitRPM:   1000,
		Readiness: health.NewProbeRunner(time.Second,
			health.DatabaseProbe(db),
			health.RedisProbe(client),
		),
	}

	server := httptest.NewServer(router.NewRouter(deps))
	t.Cleanup(server.Close)

	return &testStack{
		baseURL:   server.URL,
		client:    server.Client(),
		db:        db,
		redis:     client,
		miniredis: mr,
		jwtMgr:    jwtMgr,
		finalizer: finalizer,
		scheduler: scheduler,
	}
}

func (s *testStack) seedMember(t *testing.T, role domain.MemberRole) (*domain.Member, string) {
	t.Helper()
	m := &domain.Member{
		Name:         fmt.Sprintf("%s member", role),
		Email:        fmt.Sprintf("%s-%d@club.dev", role, time.Now().UnixNano()),
		PasswordHash: "x",
		Role:         role,
		Approved:     true,
		Onboarded:    true,
	}
	if err := s.db.Create(m).Error; err != nil {
		t.Fatalf("seed member: %v", err)
	}
	token, err := s.jwtMgr.SignAccessToken(m.ID, string(role), time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return m, token
}

func (s *testStack) do(t *testing.T, method, path, token string, body any) (*http.Response, apiEnvelope) {
	t.Helper()
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.baseURL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env apiEnvelope
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil {
			t.Fatalf("decode envelope: %v body=%s", err, raw)
		}
	}
	return resp, env
}

func decodeData(t *testing.T, env apiEnvelope, out any) {
	t.Helper()
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v raw=%s", err, env.Data)
	}
}

func errorCode(env apiEnvelope) string {
	if env.Error == nil {
		return ""
	}
	return env.Error.Code
}
