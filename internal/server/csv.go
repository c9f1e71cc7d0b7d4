package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	csvimportdomain "github.com/anoteng/regnskap/internal/csvimport/domain"
	"github.com/gin-gonic/gin"
)

const maxCSVUploadBytes = 10 << 20

type csvMappingRequest struct {
	Name              string  `json:"name"`
	DateColumn        string  `json:"date_column"`
	DescriptionColumn string  `json:"description_column"`
	AmountColumn      string  `json:"amount_column"`
	ReferenceColumn   *string `json:"reference_column"`
	DateFormat        string  `json:"date_format"`
	DecimalSeparator  string  `json:"decimal_separator"`
	Delimiter         string  `json:"delimiter"`
	SkipRows          int     `json:"skip_rows"`
	InvertAmount      bool    `json:"invert_amount"`
}

func (r csvMappingRequest) toDomain() csvimportdomain.MappingRequest {
	return csvimportdomain.MappingRequest{
		Name:              r.Name,
		DateColumn:        r.DateColumn,
		DescriptionColumn: r.DescriptionColumn,
		AmountColumn:      r.AmountColumn,
		ReferenceColumn:   r.ReferenceColumn,
		DateFormat:        r.DateFormat,
		DecimalSeparator:  r.DecimalSeparator,
		Delimiter:         r.Delimiter,
		SkipRows:          r.SkipRows,
		InvertAmount:      r.InvertAmount,
	}
}

func (s *Server) ListCSVPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": s.csvImportSvc.ListPresets()})
}

func (s *Server) ListCSVMappings(c *gin.Context) {
	mappings, err := s.csvImportSvc.ListMappings(c.Request.Context(), ledgerIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": mappings})
}

func (s *Server) CreateCSVMapping(c *gin.Context) {
	var req csvMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	mapping, err := s.csvImportSvc.CreateMapping(c.Request.Context(), ledgerIDFrom(c), req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"data": mapping})
}

func (s *Server) GetCSVMapping(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	mapping, err := s.csvImportSvc.GetMapping(c.Request.Context(), ledgerIDFrom(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": mapping})
}

func (s *Server) UpdateCSVMapping(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req csvMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	mapping, err := s.csvImportSvc.UpdateMapping(c.Request.Context(), ledgerIDFrom(c), id, req.toDomain())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": mapping})
}

func (s *Server) DeleteCSVMapping(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := s.csvImportSvc.DeleteMapping(c.Request.Context(), ledgerIDFrom(c), id); err != nil {
		AbortWithError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// PreviewCSV shows the header and the first rows of an uploaded file so the
// user can pick columns for a mapping.
func (s *Server) PreviewCSV(c *gin.Context) {
	content, _, ok := readUpload(c)
	if !ok {
		return
	}
	rows := 0
	if raw := strings.TrimSpace(c.PostForm("rows")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			AbortWithError(c, newValidationError("rows", "invalid_rows", "invalid rows"))
			return
		}
		rows = parsed
	}

	preview, err := s.csvImportSvc.Preview(content, c.PostForm("delimiter"), rows)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": preview})
}

// ImportCSV takes a multipart upload. The mapping comes from mapping_id, an
// inline JSON mapping or a preset name.
func (s *Server) ImportCSV(c *gin.Context) {
	bankAccountID, ok := pathID(c, "bankAccountId")
	if !ok {
		return
	}
	content, fileName, ok := readUpload(c)
	if !ok {
		return
	}

	req := csvimportdomain.ImportRequest{
		BankAccountID: bankAccountID,
		Preset:        strings.TrimSpace(c.PostForm("preset")),
		FileName:      fileName,
		Content:       content,
	}
	mappingID, err := parseOptionalSnowflakeID(c.PostForm("mapping_id"))
	if err != nil {
		AbortWithError(c, newValidationError("mapping_id", "invalid_mapping_id", "invalid mapping_id"))
		return
	}
	req.MappingID = mappingID
	if raw := strings.TrimSpace(c.PostForm("mapping")); raw != "" {
		var inline csvMappingRequest
		if err := json.Unmarshal([]byte(raw), &inline); err != nil {
			AbortWithError(c, newValidationError("mapping", "invalid_mapping", "invalid mapping"))
			return
		}
		m := inline.toDomain()
		req.Mapping = &m
	}

	userID, _ := userIDFrom(c)
	result, err := s.csvImportSvc.Import(c.Request.Context(), ledgerIDFrom(c), userID, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (s *Server) ListImportLogs(c *gin.Context) {
	logs, err := s.csvImportSvc.ListImportLogs(c.Request.Context(), ledgerIDFrom(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

func readUpload(c *gin.Context) ([]byte, string, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxCSVUploadBytes)
	header, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file is required"))
		return nil, "", false
	}
	f, err := header.Open()
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file cannot be read"))
		return nil, "", false
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxCSVUploadBytes+1))
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file cannot be read"))
		return nil, "", false
	}
	if len(content) > maxCSVUploadBytes {
		AbortWithError(c, newValidationError("file", "file_too_large", "file exceeds 10 MB"))
		return nil, "", false
	}
	return content, header.Filename, true
}
