package charthttp

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// indicatorsRequestSchema 约束指标计算请求的外形；参数表的语义校验
// （周期为正、fast < slow 等）由 indicator 包完成。
const indicatorsRequestSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["symbol", "resolution", "indicators"],
  "properties": {
    "symbol": {"type": "string", "minLength": 1},
    "resolution": {"type": "string", "minLength": 1},
    "limit": {"type": "integer", "minimum": 0, "maximum": 1500},
    "indicators": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "required": ["id", "type"],
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {
            "type": "string",
            "enum": ["sma", "ema", "bollinger", "rsi", "macd", "stochastic", "atr", "atr_percent", "momentum", "volume"]
          },
          "params": {"type": "object"},
          "enabled": {"type": "boolean"},
          "overlay": {"type": "boolean"}
        }
      }
    }
  }
}`

var compiledIndicatorsSchema = jsonschema.MustCompileString("indicators_request.json", indicatorsRequestSchema)

// decodeValidated 先按 JSON Schema 校验原始请求体，再解码到目标结构。
func decodeValidated(body []byte, schema *jsonschema.Schema, dest any) error {
	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := schema.Validate(raw); err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	return dec.Decode(dest)
}
