package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"board-api/domain"
)

const requestBodyMaxSize = 1 << 20

// Deps carries everything the HTTP layer needs. Register wires all routes
// on the provided Echo instance.
type Deps struct {
	Store      Storage
	Views      Views
	Collection Collection
	Notifier   Notifier
	Auth       Authenticator
	Logger     *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.POST("/api/boards", postBoard(d))
	e.GET("/api/boards/:boardID", getBoardView(d))
	e.DELETE("/api/boards/:boardID", deleteBoard(d))

	e.POST("/api/boards/:boardID/lists", postList(d))
	e.PATCH("/api/boards/:boardID/lists/:listID", patchList(d))
	e.POST("/api/boards/:boardID/lists/:listID/move", postListMove(d))
	e.DELETE("/api/boards/:boardID/lists/:listID", deleteList(d))

	e.POST("/api/boards/:boardID/lists/:listID/tasks", postTask(d))
	e.PATCH("/api/boards/:boardID/lists/:listID/tasks/:taskID", patchTask(d))
	e.POST("/api/boards/:boardID/lists/:listID/tasks/:taskID/move", postTaskMove(d))
	e.DELETE("/api/boards/:boardID/lists/:listID/tasks/:taskID", deleteTask(d))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func getBoardView(d Deps) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newBoardViewMetrics(ctx, d.Logger)
		if spanCtx != nil {
			c.SetRequest(c.Request().WithContext(spanCtx))
			ctx = spanCtx
		}
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		authStart := time.Now()
		_, authErr := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		metrics.ObserveAuth(time.Since(authStart))
		if authErr != nil {
			metrics.SetErrorStage("auth")
			err = c.String(http.StatusUnauthorized, authErr.Error())
			return err
		}

		fetchStart := time.Now()
		view, fetchErr := d.Views.FetchBoardView(ctx, c.Param("boardID"))
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			metrics.SetErrorStage("storage")
			err = respondError(c, fetchErr)
			return err
		}
		metrics.SetListsReturned(len(view.Lists))

		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, view)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

func postBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createBoardRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Name) == "" {
			return c.String(http.StatusBadRequest, "name is required")
		}

		board := domain.Board{
			ID:          uuid.NewString(),
			Name:        req.Name,
			Description: req.Description,
			OwnerID:     userID,
			CreatedAt:   time.Now().Unix(),
		}
		if err := d.Store.InsertBoard(ctx, board); err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityBoard, domain.ActionCreated, board.ID, board), "")
		return c.JSON(http.StatusCreated, board)
	}
}

func deleteBoard(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		boardID := c.Param("boardID")
		board, err := d.Store.GetBoard(ctx, boardID)
		if err != nil {
			return respondError(c, err)
		}
		if err := d.Store.DeleteBoard(ctx, boardID); err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityBoard, domain.ActionDeleted, boardID, board), "")
		return c.NoContent(http.StatusNoContent)
	}
}

func postList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createListRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}

		list, err := d.Collection.CreateList(ctx, c.Param("boardID"), req.Title, placement(req.Position))
		if err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityList, domain.ActionCreated, list.BoardID, list), "")
		return c.JSON(http.StatusCreated, list)
	}
}

func patchList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req updateListRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == nil {
			return c.String(http.StatusBadRequest, "nothing to update")
		}
		if strings.TrimSpace(*req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}

		list, err := d.Store.GetList(ctx, c.Param("boardID"), c.Param("listID"))
		if err != nil {
			return respondError(c, err)
		}
		list.Title = *req.Title
		if err := d.Store.UpdateList(ctx, list); err != nil {
			return respondError(c, err)
		}

		// Field-level edit: the initiator already sees the change, skip the echo.
		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityList, domain.ActionUpdated, list.BoardID, list), userID)
		return c.JSON(http.StatusOK, list)
	}
}

func postListMove(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req moveListRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		boardID := c.Param("boardID")
		list, moved, err := d.Collection.MoveList(ctx, boardID, c.Param("listID"), placement(req.Position))
		if err != nil {
			return respondError(c, err)
		}
		if moved {
			ev := changeEvent(domain.EntityList, domain.ActionMoved, boardID, list)
			ev.SourceParentID = boardID
			ev.DestParentID = boardID
			d.Notifier.NotifyChange(ctx, ev, "")
		}
		return c.JSON(http.StatusOK, list)
	}
}

func deleteList(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		list, err := d.Collection.DeleteList(ctx, c.Param("boardID"), c.Param("listID"))
		if err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityList, domain.ActionDeleted, list.BoardID, list), "")
		return c.NoContent(http.StatusNoContent)
	}
}

func postTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req createTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if strings.TrimSpace(req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}

		task, err := d.Collection.CreateTask(ctx, c.Param("boardID"), c.Param("listID"), req.Title, req.Notes, placement(req.Position))
		if err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityTask, domain.ActionCreated, task.BoardID, task), "")
		return c.JSON(http.StatusCreated, task)
	}
}

func patchTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		userID, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization"))
		if err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req updateTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}
		if req.Title == nil && req.Notes == nil && req.Done == nil {
			return c.String(http.StatusBadRequest, "nothing to update")
		}
		if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
			return c.String(http.StatusBadRequest, "title is required")
		}

		task, err := d.Store.GetTask(ctx, c.Param("listID"), c.Param("taskID"))
		if err != nil {
			return respondError(c, err)
		}
		if req.Title != nil {
			task.Title = *req.Title
		}
		if req.Notes != nil {
			task.Notes = *req.Notes
		}
		if req.Done != nil {
			task.Done = *req.Done
		}
		if err := d.Store.UpdateTask(ctx, task); err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityTask, domain.ActionUpdated, task.BoardID, task), userID)
		return c.JSON(http.StatusOK, task)
	}
}

func postTaskMove(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		var req moveTaskRequest
		if err := decodeBody(c, &req); err != nil {
			return c.String(http.StatusBadRequest, "invalid body")
		}

		boardID := c.Param("boardID")
		fromListID := c.Param("listID")
		toListID := req.ToListID
		if toListID == "" {
			toListID = fromListID
		}

		task, moved, err := d.Collection.MoveTask(ctx, boardID, c.Param("taskID"), fromListID, toListID, placement(req.Position))
		if err != nil {
			return respondError(c, err)
		}
		if moved {
			ev := changeEvent(domain.EntityTask, domain.ActionMoved, boardID, task)
			ev.SourceParentID = fromListID
			ev.DestParentID = toListID
			d.Notifier.NotifyChange(ctx, ev, "")
		}
		return c.JSON(http.StatusOK, task)
	}
}

func deleteTask(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if _, err := d.Auth.UserIDFromAuthHeader(c.Request().Header.Get("Authorization")); err != nil {
			return c.String(http.StatusUnauthorized, err.Error())
		}

		task, err := d.Collection.DeleteTask(ctx, c.Param("listID"), c.Param("taskID"))
		if err != nil {
			return respondError(c, err)
		}

		d.Notifier.NotifyChange(ctx, changeEvent(domain.EntityTask, domain.ActionDeleted, task.BoardID, task), "")
		return c.NoContent(http.StatusNoContent)
	}
}

func decodeBody(c echo.Context, v any) error {
	lr := io.LimitReader(c.Request().Body, requestBodyMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func changeEvent(entity domain.EntityKind, action domain.Action, boardID string, item any) domain.ChangeEvent {
	return domain.ChangeEvent{
		Entity:    entity,
		Action:    action,
		BoardID:   boardID,
		Item:      item,
		Timestamp: nextTimestamp(),
	}
}

// respondError maps the domain error taxonomy onto HTTP statuses.
func respondError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return c.String(http.StatusNotFound, "not found")
	case domain.IsConflict(err):
		return c.String(http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		return c.String(http.StatusServiceUnavailable, "storage unavailable")
	default:
		c.Logger().Error(err)
		return c.String(http.StatusInternalServerError, err.Error())
	}
}
