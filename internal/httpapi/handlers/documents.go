// Package handlers holds the REST surface of the daemon: document creation
// and snapshot reads. The editing path itself runs over the ws endpoint.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Shaharyar-developer/open-ot/internal/collab"
	"github.com/Shaharyar-developer/open-ot/internal/ot"
	"github.com/Shaharyar-developer/open-ot/internal/ot/text"
)

type Documents struct {
	svc *collab.Service
}

func NewDocuments(svc *collab.Service) *Documents {
	return &Documents{svc: svc}
}

type createRequest struct {
	DocID    string          `json:"docId"`
	Type     string          `json:"type"`
	Snapshot json.RawMessage `json:"snapshot"`
}

// Create initializes a document. DocID, type and snapshot are all optional;
// they default to a fresh UUID, the text type and the empty string.
func (d *Documents) Create(c *gin.Context) {
	var req createRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.DocID == "" {
		req.DocID = uuid.NewString()
	}
	if req.Type == "" {
		req.Type = text.TypeName
	}
	if req.Snapshot == nil {
		req.Snapshot = json.RawMessage(`""`)
	}
	if err := d.svc.CreateDocument(c.Request.Context(), req.DocID, req.Type, req.Snapshot); err != nil {
		c.JSON(ot.HTTPStatus(err), gin.H{"error": ot.Code(err)})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"docId": req.DocID, "type": req.Type, "revision": 0})
}

// Get returns the materialized snapshot and current revision.
func (d *Documents) Get(c *gin.Context) {
	docID := c.Param("docId")
	init, err := d.svc.Init(c.Request.Context(), docID)
	if err != nil {
		c.JSON(ot.HTTPStatus(err), gin.H{"error": ot.Code(err)})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"docId":    docID,
		"snapshot": init.Snapshot,
		"revision": init.Revision,
	})
}
