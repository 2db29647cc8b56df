package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/promptgallery/gallery-backend/docs"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec represents an OpenAPI 3.0 spec structure
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

type object = map[string]interface{}

var httpMethods = map[string]bool{
	"get": true, "put": true, "post": true, "delete": true, "patch": true, "head": true, "options": true,
}

// rewriteRefs points every $ref at #/components/schemas/
func rewriteRefs(data interface{}) interface{} {
	switch v := data.(type) {
	case object:
		out := make(object, len(v))
		for key, value := range v {
			if ref, ok := value.(string); ok && key == "$ref" {
				out[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				continue
			}
			out[key] = rewriteRefs(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = rewriteRefs(item)
		}
		return out
	default:
		return data
	}
}

// convertPaths rewrites every operation under paths
func convertPaths(paths object) object {
	out := make(object, len(paths))
	for path, item := range paths {
		ops, ok := item.(object)
		if !ok {
			continue
		}
		converted := make(object, len(ops))
		for method, op := range ops {
			if opObj, ok := op.(object); ok && httpMethods[method] {
				converted[method] = convertOperation(opObj)
			} else {
				converted[method] = rewriteRefs(op)
			}
		}
		out[path] = converted
	}
	return out
}

// convertOperation moves body and formData parameters into requestBody and
// wraps response schemas in a JSON media type
func convertOperation(op object) object {
	out := make(object, len(op))
	for key, value := range op {
		switch key {
		case "parameters", "responses", "consumes", "produces":
		default:
			out[key] = rewriteRefs(value)
		}
	}

	var params []interface{}
	form := object{}
	var required []interface{}
	raw, _ := op["parameters"].([]interface{})
	for _, p := range raw {
		param, ok := p.(object)
		if !ok {
			continue
		}
		switch param["in"] {
		case "body":
			out["requestBody"] = object{
				"required": param["required"] == true,
				"content": object{
					"application/json": object{"schema": rewriteRefs(param["schema"])},
				},
			}
		case "formData":
			schema := object{"type": param["type"]}
			if param["type"] == "file" {
				schema = object{"type": "string", "format": "binary"}
			}
			form[param["name"].(string)] = schema
			if param["required"] == true {
				required = append(required, param["name"])
			}
		default:
			params = append(params, convertParameter(param))
		}
	}
	if len(params) > 0 {
		out["parameters"] = params
	}
	if len(form) > 0 {
		schema := object{"type": "object", "properties": form}
		if len(required) > 0 {
			schema["required"] = required
		}
		out["requestBody"] = object{
			"required": len(required) > 0,
			"content":  object{"multipart/form-data": object{"schema": schema}},
		}
	}

	if responses, ok := op["responses"].(object); ok {
		converted := make(object, len(responses))
		for code, r := range responses {
			resp, ok := r.(object)
			if !ok {
				continue
			}
			next := object{"description": resp["description"]}
			if schema, ok := resp["schema"]; ok {
				next["content"] = object{"application/json": object{"schema": rewriteRefs(schema)}}
			}
			converted[code] = next
		}
		out["responses"] = converted
	}
	return out
}

// convertParameter turns the inline type fields of a path, query or header
// parameter into a schema
func convertParameter(param object) object {
	out := object{}
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			out[field] = val
		}
	}

	schema := object{}
	for _, field := range []string{"type", "format", "enum", "default", "minimum", "maximum", "items"} {
		if val, ok := param[field]; ok {
			schema[field] = rewriteRefs(val)
		}
	}
	if len(schema) > 0 {
		out["schema"] = schema
	}
	return out
}

// ServeOpenAPI3Spec serves the swagger spec converted to OpenAPI 3.0
func ServeOpenAPI3Spec(c echo.Context) error {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return NewInternalError(c, "Failed to read swagger doc")
	}

	var swagger2 object
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return NewInternalError(c, "Failed to parse swagger doc")
	}

	info, _ := swagger2["info"].(object)
	paths, _ := swagger2["paths"].(object)

	components := object{}
	if secDefs, ok := swagger2["securityDefinitions"].(object); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(object); ok {
		components["schemas"] = rewriteRefs(definitions)
	}

	return c.JSON(http.StatusOK, OpenAPI3Spec{
		OpenAPI: "3.0.3",
		Info:    info,
		Servers: []Server{
			{URL: c.Scheme() + "://" + c.Request().Host + docs.SwaggerInfo.BasePath, Description: "This server"},
			{URL: "http://localhost:8080" + docs.SwaggerInfo.BasePath, Description: "Local development"},
		},
		Paths:      convertPaths(paths),
		Components: components,
	})
}
