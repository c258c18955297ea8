package apputil

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig"
	"github.com/ghodss/yaml"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// toYaml and toJson fail the render on marshal errors.
func toYaml(v interface{}) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toYaml: %v", err)
	}
	return string(data), nil
}

func toJson(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("toJson: %v", err)
	}
	return string(data), nil
}

func funcMap() template.FuncMap {
	f := sprig.TxtFuncMap()
	delete(f, "env")
	delete(f, "expandenv")
	f["toYaml"] = toYaml
	f["toJson"] = toJson
	return f
}

// GetTemplate renders tpl with data. Sprig functions, toYaml and toJson are
// available; env lookups are not.
func GetTemplate(tpl string, data interface{}) (string, error) {
	t, err := template.New("gotpl").Funcs(funcMap()).Option("missingkey=error").Parse(tpl)
	if err != nil {
		return "", fmt.Errorf("Failed parse template %v", err)
	}
	buffer := bytes.NewBuffer(make([]byte, 0))
	if err := t.ExecuteTemplate(buffer, "gotpl", data); err != nil {
		return "", err
	}
	return buffer.String(), nil
}
