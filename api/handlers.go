package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"todo-api/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, store Storage, events *EventSender) {
	e.JSONSerializer = sonicSerializer{}

	g := e.Group("/todoitems")
	g.GET("", listTodos(store))
	g.GET("/complete", listCompletedTodos(store))
	g.GET("/:id", getTodo(store))
	g.POST("", createTodo(store, events))
	g.PUT("/:id", updateTodo(store, events))
	g.DELETE("/:id", deleteTodo(store, events))

	e.GET("/healthz", healthz())
}

func healthz() echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	}
}

func listTodos(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		start := time.Now()
		todos, err := store.List(c.Request().Context())
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		m.SetItemsReturned(len(todos))
		return c.JSON(http.StatusOK, todos)
	}
}

func listCompletedTodos(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		start := time.Now()
		todos, err := store.ListCompleted(c.Request().Context())
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		m.SetItemsReturned(len(todos))
		return c.JSON(http.StatusOK, todos)
	}
}

func getTodo(store Storage) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := todoID(c)
		if !ok {
			return notFound(c)
		}
		m := metricsFrom(c)
		start := time.Now()
		todo, err := store.FindByID(c.Request().Context(), id)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		m.SetItemsReturned(1)
		return c.JSON(http.StatusOK, todo)
	}
}

func createTodo(store Storage, events *EventSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		m := metricsFrom(c)
		in, err := decodeTodoInput(c)
		if err != nil {
			m.SetError("decode", err)
			return c.String(http.StatusBadRequest, "invalid body")
		}

		start := time.Now()
		todo, err := store.Add(c.Request().Context(), in.Todo())
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		m.SetTodoID(todo.ID)
		events.Emit(newEvent(domain.TodoCreated, todo.ID, &todo))

		c.Response().Header().Set(echo.HeaderLocation, "/todoitems/"+strconv.FormatInt(todo.ID, 10))
		return c.JSON(http.StatusCreated, todo)
	}
}

func updateTodo(store Storage, events *EventSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := todoID(c)
		if !ok {
			return notFound(c)
		}
		m := metricsFrom(c)
		in, err := decodeTodoInput(c)
		if err != nil {
			m.SetError("decode", err)
			return c.String(http.StatusBadRequest, "invalid body")
		}

		start := time.Now()
		todo, err := store.Update(c.Request().Context(), id, in.Todo())
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		events.Emit(newEvent(domain.TodoUpdated, id, &todo))
		return c.NoContent(http.StatusNoContent)
	}
}

func deleteTodo(store Storage, events *EventSender) echo.HandlerFunc {
	return func(c echo.Context) error {
		id, ok := todoID(c)
		if !ok {
			return notFound(c)
		}
		m := metricsFrom(c)
		start := time.Now()
		err := store.Remove(c.Request().Context(), id)
		m.ObserveStore(time.Since(start))
		if err != nil {
			return storageError(c, err)
		}
		events.Emit(newEvent(domain.TodoDeleted, id, nil))
		return c.NoContent(http.StatusNoContent)
	}
}

// todoID parses the :id path segment. Anything that is not an integer does
// not address a todo and is reported as not found.
func todoID(c echo.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, false
	}
	metricsFrom(c).SetTodoID(id)
	return id, true
}

func decodeTodoInput(c echo.Context) (domain.TodoInput, error) {
	var in domain.TodoInput
	lr := io.LimitReader(c.Request().Body, todoBodyMaxSize)
	if err := sonic.ConfigStd.NewDecoder(lr).Decode(&in); err != nil {
		return domain.TodoInput{}, err
	}
	return in, nil
}

func notFound(c echo.Context) error {
	return c.String(http.StatusNotFound, domain.ErrNotFound.Error())
}

func storageError(c echo.Context, err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return notFound(c)
	}
	c.Logger().Error(err)
	metricsFrom(c).SetError("storage", err)
	return c.String(http.StatusInternalServerError, "storage error")
}
