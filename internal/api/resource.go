package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/gridapi/gridapi/internal/codec"
	"github.com/gridapi/gridapi/internal/queryir"
	"github.com/gridapi/gridapi/internal/querysql"
	"github.com/gridapi/gridapi/internal/schema"
	"github.com/gridapi/gridapi/internal/store"
)

// Resource serves one schema table. All fields are built at startup and
// read-only afterward; handlers share nothing mutable across requests.
type Resource struct {
	spec      *schema.TableSpec
	tbl       *store.Table
	codecs    codec.FieldCodecs
	serialize codec.RowSerializer
	compiler  *querysql.Compiler
	naming    codec.ForeignKeyNaming

	defaultLimit int
	log          *zap.Logger
}

// List handles GET /{table} with the filter micro-syntax. The response is
// the {"items": [...], "total": N} envelope.
func (r *Resource) List(c *gin.Context) {
	req, err := queryir.ParseParams(c.Request.URL.Query(), r.spec, r.defaultLimit)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	plan, err := queryir.BuildPlan(req, r.codecs)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	compiled, err := r.compiler.Compile(plan)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	r.log.Debug("compiled query",
		zap.String("sql", compiled.Query),
		zap.Any("args", compiled.QueryArgs))

	ctx := c.Request.Context()
	rows, err := r.tbl.Query(ctx, compiled.Query, compiled.QueryArgs...)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	total, err := r.tbl.Count(ctx, compiled.Count, compiled.CountArgs...)
	if err != nil {
		writeError(c, r.log, err)
		return
	}

	items := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		items = append(items, r.project(r.serialize(row), plan.Fields))
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// GetOne handles GET /{table}/{id}, returning the bare serialized record.
func (r *Resource) GetOne(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	row, err := r.tbl.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	fields := splitFieldsParam(c.Query("fields"))
	c.JSON(http.StatusOK, r.project(r.serialize(row), fields))
}

// batchRequest is the body of POST /{table}/find_by_ids. IDs is a pointer so
// an absent key is distinguishable from an empty list.
type batchRequest struct {
	IDs *[]json.Number `json:"ids"`
}

// GetByIDs handles POST /{table}/find_by_ids. Unknown ids are silently
// skipped; the response maps each matched id to its record.
func (r *Resource) GetByIDs(c *gin.Context) {
	var req batchRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if req.IDs == nil {
		badRequest(c, "missing ids")
		return
	}

	ids := make([]int64, 0, len(*req.IDs))
	for _, raw := range *req.IDs {
		id, err := raw.Int64()
		if err != nil {
			badRequest(c, fmt.Sprintf("invalid id: %v", raw))
			return
		}
		ids = append(ids, id)
	}

	rows, err := r.tbl.GetMany(c.Request.Context(), ids)
	if err != nil {
		writeError(c, r.log, err)
		return
	}

	fields := splitFieldsParam(c.Query("fields"))
	items := make(map[string]map[string]any, len(rows))
	for _, row := range rows {
		key := strconv.FormatInt(row["id"].(int64), 10)
		items[key] = r.project(r.serialize(row), fields)
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": len(items)})
}

// Has handles HEAD /{table}/{id}: presence is the status code, no body.
func (r *Resource) Has(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	exists, err := r.tbl.Exists(c.Request.Context(), id)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	if !exists {
		c.Status(http.StatusNotFound)
		return
	}
	c.Status(http.StatusOK)
}

// Create handles POST /{table}. A client-supplied id is rejected; a missing
// field without a declared default is rejected.
func (r *Resource) Create(c *gin.Context) {
	body, ok := decodeBody(c)
	if !ok {
		return
	}
	if _, present := body["id"]; present {
		badRequest(c, "id cannot be supplied on create")
		return
	}

	typed, err := r.deserializeBody(body)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	for _, f := range r.spec.Fields {
		if f.PrimaryKey || f.HasDefault {
			continue
		}
		if _, present := typed[f.Name]; !present {
			badRequest(c, fmt.Sprintf("missing field: %s", f.Name))
			return
		}
	}

	ctx := c.Request.Context()
	id, err := r.tbl.Insert(ctx, typed)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	row, err := r.tbl.Get(ctx, id)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, r.serialize(row))
}

// Update handles PUT /{table}/{id}, overwriting the supplied fields.
func (r *Resource) Update(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	body, ok := decodeBody(c)
	if !ok {
		return
	}
	if _, present := body["id"]; present {
		badRequest(c, "id cannot be changed")
		return
	}

	typed, err := r.deserializeBody(body)
	if err != nil {
		writeError(c, r.log, err)
		return
	}

	ctx := c.Request.Context()
	if err := r.tbl.Update(ctx, id, typed); err != nil {
		writeError(c, r.log, err)
		return
	}
	row, err := r.tbl.Get(ctx, id)
	if err != nil {
		writeError(c, r.log, err)
		return
	}
	c.JSON(http.StatusOK, r.serialize(row))
}

// Delete handles DELETE /{table}/{id}.
func (r *Resource) Delete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := r.tbl.Delete(c.Request.Context(), id); err != nil {
		writeError(c, r.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Truncate handles DELETE /{table}. Only routed when enabled in config.
func (r *Resource) Truncate(c *gin.Context) {
	if err := r.tbl.Truncate(c.Request.Context()); err != nil {
		writeError(c, r.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// deserializeBody resolves a decoded JSON body to typed values, rejecting
// unknown keys.
func (r *Resource) deserializeBody(body map[string]any) (map[string]any, error) {
	typed := make(map[string]any, len(body))
	for name, raw := range body {
		f, ok := r.spec.Field(name)
		if !ok {
			return nil, &queryir.BadRequestError{Msg: "unknown field: " + name}
		}
		v, err := r.codecs[name].Deserialize(raw)
		if err != nil {
			return nil, err
		}
		typed[f.Name] = v
	}
	return typed, nil
}

// project filters a serialized record to the requested fields. Requested
// names resolve through the schema so references answer under either name.
func (r *Resource) project(record map[string]any, fields []string) map[string]any {
	if len(fields) == 0 {
		return record
	}
	out := make(map[string]any, len(fields))
	for _, name := range fields {
		key := name
		if f, ok := r.spec.Field(name); ok {
			key = f.Name
			if f.IsForeignRef() && r.naming == codec.FKDBFieldName {
				key = f.Column()
			}
		}
		if v, present := record[key]; present {
			out[key] = v
		}
	}
	return out
}

// decodeBody reads the request body as a JSON object, keeping numbers as
// json.Number so large integers survive.
func decodeBody(c *gin.Context) (map[string]any, bool) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return nil, false
	}
	return body, true
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		badRequest(c, "invalid id: "+c.Param("id"))
		return 0, false
	}
	return id, true
}

func splitFieldsParam(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if part := raw[start:i]; part != "" {
				out = append(out, part)
			}
			start = i + 1
		}
	}
	return out
}
