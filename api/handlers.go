package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"taskhub/domain"
	"taskhub/service"
	"taskhub/storage"
)

const requestBodyMaxSize = 1 << 20

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, tasks TaskService, auth *Auth, logger *log.Logger) {
	e.GET("/", apiRoot)
	e.GET("/healthz", healthz)

	e.POST("/api/auth/register", registerUser(auth))
	e.POST("/api/auth/login", loginUser(auth))
	e.GET("/api/auth/profile", getProfile(auth))

	e.POST("/api/tasks", createTask(tasks, auth))
	e.GET("/api/tasks", getTasks(tasks, auth, logger))
	e.GET("/api/tasks/:id", getTask(tasks, auth))
	e.PUT("/api/tasks/:id", updateTask(tasks, auth))
	e.DELETE("/api/tasks/:id", deleteTask(tasks, auth))
}

type dataResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type listResponse struct {
	Success bool          `json:"success"`
	Count   int           `json:"count"`
	Data    []domain.Task `json:"data"`
}

type errorResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Errors  []domain.FieldError `json:"errors,omitempty"`
}

type authPayload struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type createTaskRequest struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Status      domain.Status `json:"status"`
}

func apiRoot(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"message": "Task Management API",
		"version": "1.0.0",
		"endpoints": map[string]string{
			"auth":  "/api/auth",
			"tasks": "/api/tasks",
		},
	})
}

func healthz(c echo.Context) error {
	return c.NoContent(http.StatusOK)
}

func registerUser(auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req registerRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body")
		}

		user, token, err := auth.Register(c.Request().Context(), req.Name, req.Email, req.Password)
		if err != nil {
			var verr *domain.ValidationError
			switch {
			case errors.As(err, &verr):
				return c.JSON(http.StatusBadRequest, errorResponse{Errors: verr.Fields})
			case errors.Is(err, storage.ErrEmailTaken):
				return fail(c, http.StatusBadRequest, "User already exists with this email")
			default:
				c.Logger().Error(err)
				return fail(c, http.StatusInternalServerError, "Server error during registration")
			}
		}

		return c.JSON(http.StatusCreated, dataResponse{
			Success: true,
			Message: "User registered successfully",
			Data:    authPayload{ID: user.ID, Name: user.Name, Email: user.Email, Token: token},
		})
	}
}

func loginUser(auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body")
		}

		user, token, err := auth.Login(c.Request().Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, ErrInvalidCredentials) {
				return fail(c, http.StatusUnauthorized, "Invalid email or password")
			}
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "Server error during login")
		}

		return c.JSON(http.StatusOK, dataResponse{
			Success: true,
			Message: "Login successful",
			Data:    authPayload{ID: user.ID, Name: user.Name, Email: user.Email, Token: token},
		})
	}
}

func getProfile(auth *Auth) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, err.Error())
		}

		user, err := auth.Profile(c.Request().Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrUserNotFound) {
				return fail(c, http.StatusUnauthorized, errTokenInvalid.Error())
			}
			c.Logger().Error(err)
			return fail(c, http.StatusInternalServerError, "Server error")
		}

		return c.JSON(http.StatusOK, dataResponse{Success: true, Data: user})
	}
}

func createTask(tasks TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body")
		}

		task, err := tasks.Create(c.Request().Context(), userID, req.Title, req.Description, req.Status)
		if err != nil {
			return taskError(c, err, "Server error creating task")
		}

		return c.JSON(http.StatusCreated, dataResponse{
			Success: true,
			Message: "Task created successfully",
			Data:    task,
		})
	}
}

func getTasks(tasks TaskService, auth Authenticator, logger *log.Logger) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newTaskRequestMetrics(ctx, logger)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		userID, authErr := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = fail(c, http.StatusUnauthorized, authErr.Error())
			return err
		}

		filter := c.QueryParam("status")
		metrics.SetFilterProvided(filter != "")

		fetchStart := time.Now()
		list, fetchErr := tasks.List(ctx, userID, filter)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			err = fail(c, http.StatusInternalServerError, "Server error fetching tasks")
			return err
		}
		metrics.SetTasksReturned(len(list))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, listResponse{Success: true, Count: len(list), Data: list})
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func getTask(tasks TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, err.Error())
		}

		task, err := tasks.Get(c.Request().Context(), userID, c.Param("id"))
		if err != nil {
			return taskError(c, err, "Server error")
		}
		return c.JSON(http.StatusOK, dataResponse{Success: true, Data: task})
	}
}

func updateTask(tasks TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, err.Error())
		}

		var patch domain.TaskUpdate
		if err := decodeBody(c, &patch); err != nil {
			return fail(c, http.StatusBadRequest, "Invalid request body")
		}

		task, err := tasks.Update(c.Request().Context(), userID, c.Param("id"), patch)
		if err != nil {
			return taskError(c, err, "Server error updating task")
		}

		return c.JSON(http.StatusOK, dataResponse{
			Success: true,
			Message: "Task updated successfully",
			Data:    task,
		})
	}
}

func deleteTask(tasks TaskService, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		userID, err := auth.UserIDFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
		if err != nil {
			return fail(c, http.StatusUnauthorized, err.Error())
		}

		if err := tasks.Delete(c.Request().Context(), userID, c.Param("id")); err != nil {
			return taskError(c, err, "Server error deleting task")
		}

		return c.JSON(http.StatusOK, dataResponse{Success: true, Message: "Task deleted successfully"})
	}
}

// decodeBody reads a size-capped JSON body, rejecting unknown fields so
// typos do not silently pass through the partial-update merge.
func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, errorResponse{Message: message})
}

// taskError maps service failures onto the response taxonomy. Store
// failures return a generic message; the detail stays in the log.
func taskError(c echo.Context, err error, serverMsg string) error {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, errorResponse{Errors: verr.Fields})
	case service.IsNotFound(err):
		return fail(c, http.StatusNotFound, "Task not found")
	default:
		c.Logger().Error(err)
		return fail(c, http.StatusInternalServerError, serverMsg)
	}
}
