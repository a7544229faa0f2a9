package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/vellum-graph/vellum/internal/server/middleware"
	"github.com/vellum-graph/vellum/internal/storage"
	pgxstore "github.com/vellum-graph/vellum/pkg/store/pgx"
)

func GetDocumentsHandler(c echo.Context) error {
	type getDocumentsParams struct {
		GroupID string `param:"id" validate:"required"`
	}

	params := new(getDocumentsParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	st := pgxstore.NewGraphDBStore(app.DBConn)
	documents, err := st.GetDocuments(ctx, params.GroupID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, documents)
}

func GetDocumentDownloadLinkHandler(c echo.Context) error {
	type getDownloadLinkParams struct {
		GroupID    string `param:"id" validate:"required"`
		DocumentID string `param:"documentId" validate:"required"`
	}

	type downloadLinkResponse struct {
		URL string `json:"url"`
	}

	params := new(getDownloadLinkParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	user := c.(*middleware.AppContext).User
	if user == nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	st := pgxstore.NewGraphDBStore(app.DBConn)
	document, err := st.GetDocument(ctx, params.GroupID, params.DocumentID)
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Document not found"})
	}

	link, err := storage.GenerateDownloadLink(ctx, app.S3, document.Source)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	return c.JSON(http.StatusOK, downloadLinkResponse{URL: link})
}
