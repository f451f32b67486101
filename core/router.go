package core

import (
	"encoding/csv"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
)

// RouterDeps carries the collaborators of the HTTP surface. Feed, Metrics and
// Redis may be nil.
type RouterDeps struct {
	Auth     AuthService
	Sessions *SessionManager
	Users    UserStore
	Hasher   PasswordHasher
	Lockout  *MemoryLockout
	Feed     *AccessFeed
	Metrics  *AuthMetrics
	Redis    Pinger
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, store *sessions.CookieStore, deps RouterDeps) *gin.Engine {
	startedAt := time.Now()
	r := gin.Default()

	cookies := newCookieSessions(cfg, store)

	// Global middleware: origin/CORS -> session -> CSRF
	r.Use(OriginRefererMiddleware(cfg))
	r.Use(cookies.sessionMiddleware())
	r.Use(cookies.csrfMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	sm := deps.Sessions
	users := deps.Users

	api := r.Group("/api/v1")
	{
		api.POST("/auth/login", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			p, err := deps.Auth.Authenticate(req.Username, req.Password)
			switch {
			case errors.Is(err, ErrAccountLocked):
				respondError(c, http.StatusLocked, "ACCOUNT_LOCKED", "too many failed attempts; try again later")
				return
			case errors.Is(err, ErrStoreUnavailable):
				respondError(c, http.StatusServiceUnavailable, "STORE_UNAVAILABLE", "sign-in is temporarily unavailable")
				return
			case err != nil:
				respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
				return
			}

			if err := cookies.bind(c, sm.Login(p)); err != nil {
				sm.Logout()
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to set session")
				return
			}

			c.JSON(http.StatusOK, gin.H{"user": p})
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			// Only the holder of the current login may end it.
			if _, ok := sm.Holds(loginTokenOf(sessionFrom(c))); ok {
				sm.Logout()
			}
			if err := cookies.clear(c); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.POST("/auth/register", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
				FullName string `json:"full_name"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if !deps.Auth.Register(req.Username, req.Password, req.FullName) {
				respondError(c, http.StatusBadRequest, "REGISTRATION_FAILED", "registration failed; check the fields or choose another username")
				return
			}
			c.JSON(http.StatusCreated, gin.H{"registered": true})
		})

		api.GET("/users/me", RequireLogin(sm), func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"user": currentPrincipal(c)})
		})

		admin := api.Group("/admin")
		admin.Use(AdminOnly(sm))

		admin.GET("/users", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			ctx := c.Request.Context()
			items, total, err := users.List(ctx, page, perPage)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to fetch users")
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		admin.POST("/users", func(c *gin.Context) {
			var req struct {
				Username string `json:"username"`
				Password string `json:"password"`
				FullName string `json:"full_name"`
				Role     string `json:"role"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			role, err := ParseRole(strings.TrimSpace(req.Role))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role")
				return
			}
			username, fullName, err := ValidateAccount(req.Username, req.Password, req.FullName)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			hash, err := deps.Hasher.Hash(req.Password)
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}

			ctx := c.Request.Context()
			created, err := users.Insert(ctx, username, hash, fullName, role)
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to create user")
				return
			}
			if !created {
				respondError(c, http.StatusConflict, "CONFLICT", "username already exists")
				return
			}

			record, err := users.FindActiveByUsername(ctx, username)
			if err != nil || record == nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load created user")
				return
			}
			c.JSON(http.StatusCreated, record.Principal())
		})

		admin.PATCH("/users/:id", func(c *gin.Context) {
			id, ok := targetUserID(c)
			if !ok {
				return
			}
			var req struct {
				Role   *string `json:"role"`
				Active *bool   `json:"active"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}
			if req.Role == nil && req.Active == nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "nothing to update")
				return
			}
			var role Role
			if req.Role != nil {
				parsed, err := ParseRole(strings.TrimSpace(*req.Role))
				if err != nil || *req.Role == "" {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid role")
					return
				}
				role = parsed
			}

			ctx := c.Request.Context()
			if req.Role != nil {
				if err := users.SetRole(ctx, id, role); err != nil {
					respondStoreError(c, err, "failed to update role")
					return
				}
			}
			if req.Active != nil {
				if err := users.SetActive(ctx, id, *req.Active); err != nil {
					respondStoreError(c, err, "failed to update status")
					return
				}
			}
			record, err := users.Get(ctx, id)
			if err != nil {
				respondStoreError(c, err, "failed to load user")
				return
			}
			c.JSON(http.StatusOK, record.Principal())
		})

		admin.DELETE("/users/:id", func(c *gin.Context) {
			id, ok := targetUserID(c)
			if !ok {
				return
			}
			if err := users.Delete(c.Request.Context(), id); err != nil {
				respondStoreError(c, err, "failed to delete user")
				return
			}
			c.Status(http.StatusNoContent)
		})

		admin.POST("/users/bulk", func(c *gin.Context) {
			fileHeader, err := c.FormFile("file")
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "attach a CSV in the file field")
				return
			}
			if fileHeader.Size > maxBulkUploadSize {
				respondError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "csv too large")
				return
			}
			file, err := fileHeader.Open()
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot open file")
				return
			}
			defer file.Close()

			reader := csv.NewReader(file)
			reader.FieldsPerRecord = -1
			records, err := reader.ReadAll()
			if err != nil || len(records) == 0 {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "cannot read csv")
				return
			}
			if !isBulkHeader(records[0]) {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "header must be username,password,full_name")
				return
			}

			type failedRow struct {
				RowNumber int    `json:"row_number"`
				Username  string `json:"username"`
				Reason    string `json:"reason"`
			}
			var failed []failedRow
			created := 0

			ctx := c.Request.Context()
			for i, row := range records[1:] {
				rowNumber := i + 2 // header is row 1
				if len(row) < 3 {
					failed = append(failed, failedRow{RowNumber: rowNumber, Reason: "INVALID_ROW"})
					continue
				}
				username, fullName, err := ValidateAccount(row[0], row[1], row[2])
				if err != nil {
					failed = append(failed, failedRow{RowNumber: rowNumber, Username: strings.TrimSpace(row[0]), Reason: "VALIDATION_ERROR"})
					continue
				}
				hash, err := deps.Hasher.Hash(row[1])
				if err != nil {
					failed = append(failed, failedRow{RowNumber: rowNumber, Username: username, Reason: "VALIDATION_ERROR"})
					continue
				}
				ok, err := users.Insert(ctx, username, hash, fullName, RoleUser)
				switch {
				case err != nil:
					failed = append(failed, failedRow{RowNumber: rowNumber, Username: username, Reason: "INTERNAL_ERROR"})
					continue
				case !ok:
					failed = append(failed, failedRow{RowNumber: rowNumber, Username: username, Reason: "USERNAME_ALREADY_EXISTS"})
					continue
				}
				created++
			}

			c.JSON(http.StatusOK, gin.H{
				"created_count": created,
				"failed_count":  len(failed),
				"failed_rows":   failed,
			})
		})

		admin.GET("/lockouts/:username", func(c *gin.Context) {
			c.JSON(http.StatusOK, deps.Lockout.Status(c.Param("username")))
		})

		admin.DELETE("/lockouts/:username", func(c *gin.Context) {
			deps.Lockout.RecordSuccess(c.Param("username"))
			c.Status(http.StatusNoContent)
		})

		admin.GET("/access-log", func(c *gin.Context) {
			limit := defaultPerPage
			if v := strings.TrimSpace(c.Query("limit")); v != "" {
				n, err := strconv.Atoi(v)
				if err != nil || n <= 0 {
					respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "limit must be a positive integer")
					return
				}
				limit = min(n, maxPerPage)
			}

			ctx := c.Request.Context()
			source := "redis"
			var items []AccessEvent
			var err error
			if deps.Feed != nil {
				items, err = deps.Feed.Recent(ctx, limit)
			} else {
				source = "store"
				items, err = users.AccessLog(ctx, limit)
			}
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load access log")
				return
			}
			c.JSON(http.StatusOK, gin.H{"items": items, "source": source})
		})

		admin.GET("/metrics/auth", func(c *gin.Context) {
			snap, err := deps.Metrics.Snapshot(c.Request.Context())
			if err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to load metrics")
				return
			}
			c.JSON(http.StatusOK, gin.H{"enabled": deps.Metrics != nil, "outcomes": snap})
		})

		admin.GET("/system/status", func(c *gin.Context) {
			st := CollectSystemStatus(c.Request.Context(), users, deps.Redis, sm, deps.Lockout, startedAt)
			c.JSON(http.StatusOK, st)
		})
	}

	return r
}

// targetUserID parses :id and refuses operations on the caller's own account.
func targetUserID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid id")
		return 0, false
	}
	if id == currentPrincipal(c).ID {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "you cannot modify your own account")
		return 0, false
	}
	return id, true
}

func respondStoreError(c *gin.Context, err error, message string) {
	if errors.Is(err, ErrUserNotFound) {
		respondError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
		return
	}
	respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", message)
}

func isBulkHeader(header []string) bool {
	want := []string{"username", "password", "full_name"}
	if len(header) < len(want) {
		return false
	}
	for i, w := range want {
		if strings.ToLower(strings.TrimSpace(header[i])) != w {
			return false
		}
	}
	return true
}

const (
	defaultPerPage    = 20
	maxPerPage        = 100
	maxBulkUploadSize = 1 << 20
)

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
