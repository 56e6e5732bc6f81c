package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
)

// FlexibleString accepts a JSON string or number, e.g. phone numbers.
type FlexibleString string

func (fs *FlexibleString) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(trimmed, &s); err == nil {
		*fs = FlexibleString(strings.TrimSpace(s))
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(trimmed, &num); err == nil {
		*fs = FlexibleString(num.String())
		return nil
	}
	return fmt.Errorf("expected string or number, got %s", string(data))
}

func (fs FlexibleString) String() string {
	return string(fs)
}

func bindJSON(c *gin.Context, dst any) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return apperr.Validation("Datos de solicitud inválidos", err.Error())
	}
	return nil
}

// pathID returns the named path parameter if it is a UUID.
func pathID(c *gin.Context, name string) (string, error) {
	raw := strings.TrimSpace(c.Param(name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperr.Validation("ID inválido", name)
	}
	return id.String(), nil
}

func optionalUUID(raw string) (*string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, err
	}
	s := id.String()
	return &s, nil
}

// optionalID canonicalises a body or query ID; empty stays empty.
func optionalID(raw, field string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperr.Validation("ID inválido", field)
	}
	return id.String(), nil
}

// listParams is the pagination and sorting shared by list endpoints:
// limit, page, all, sort_by, sort_dir.
type listParams struct {
	All     bool
	Limit   int
	Page    int
	SortCol string
	SortDir string
}

func parseListParams(c *gin.Context, defaultLimit int, sorts map[string]string, defaultSort string) listParams {
	p := listParams{
		All:   strings.EqualFold(c.Query("all"), "true") || c.Query("all") == "1",
		Limit: defaultLimit,
		Page:  1,
	}
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 {
		p.Limit = n
	}
	if n, err := strconv.Atoi(c.Query("page")); err == nil && n > 0 {
		p.Page = n
	}
	p.SortDir = strings.ToUpper(c.DefaultQuery("sort_dir", "DESC"))
	if p.SortDir != "ASC" && p.SortDir != "DESC" {
		p.SortDir = "DESC"
	}
	col, ok := sorts[strings.ToLower(c.Query("sort_by"))]
	if !ok {
		col = sorts[defaultSort]
	}
	p.SortCol = col
	return p
}

func (p listParams) Order() string {
	return p.SortCol + " " + p.SortDir
}

func (p listParams) Offset() int {
	return (p.Page - 1) * p.Limit
}

func (p listParams) Meta(total int64) gin.H {
	meta := gin.H{"total": total, "all": p.All}
	if !p.All {
		meta["limit"] = p.Limit
		meta["page"] = p.Page
		meta["sort_by"] = p.SortCol
		meta["sort_dir"] = p.SortDir
	}
	return meta
}

// parseActive reads the activo filter: "", true/1 or false/0.
func parseActive(raw string) (*bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return nil, nil
	case "true", "1":
		v := true
		return &v, nil
	case "false", "0":
		v := false
		return &v, nil
	}
	return nil, apperr.Validation("Valor de activo inválido")
}
