package config

import (
	"fmt"
	"strconv"

	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

// parseHCL flattens an HCL document. Attributes become keys; a block contributes its type
// and labels as path segments, so
//
//	postgres "primary" {
//	  host = "db"
//	}
//
// yields "postgres:primary:host" = "db". Expressions are evaluated without variables.
func parseHCL(name string, data []byte, out map[string]string) error {
	file, diags := hclparse.NewParser().ParseHCL(data, name)
	if diags.HasErrors() {
		return fmt.Errorf("%w: %s: %s", ErrParseFile, name, diags.Error())
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return fmt.Errorf("%w: %s: unexpected body type %T", ErrParseFile, name, file.Body)
	}
	return flattenHCLBody(name, "", body, out)
}

func flattenHCLBody(name, prefix string, body *hclsyntax.Body, out map[string]string) error {
	for attrName, attr := range body.Attributes {
		value, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			return fmt.Errorf("%w: %s: attribute %q: %s", ErrParseFile, name, attrName, diags.Error())
		}
		if err := flattenCty(JoinPath(prefix, attrName), value, out); err != nil {
			return fmt.Errorf("%w: %s: attribute %q: %w", ErrParseFile, name, attrName, err)
		}
	}

	for _, block := range body.Blocks {
		segments := append([]string{prefix, block.Type}, block.Labels...)
		if err := flattenHCLBody(name, JoinPath(segments...), block.Body, out); err != nil {
			return err
		}
	}
	return nil
}

// flattenCty writes the leaves of v below prefix.
func flattenCty(prefix string, v cty.Value, out map[string]string) error {
	if v.IsNull() || !v.IsKnown() {
		out[prefix] = ""
		return nil
	}

	ty := v.Type()
	switch {
	case ty == cty.String:
		out[prefix] = v.AsString()
	case ty == cty.Number:
		bf := v.AsBigFloat()
		if bf.IsInt() {
			i, _ := bf.Int(nil)
			out[prefix] = i.String()
		} else {
			out[prefix] = bf.Text('f', -1)
		}
	case ty == cty.Bool:
		out[prefix] = strconv.FormatBool(v.True())
	case ty.IsListType() || ty.IsTupleType() || ty.IsSetType():
		i := 0
		for it := v.ElementIterator(); it.Next(); i++ {
			_, elem := it.Element()
			if err := flattenCty(JoinPath(prefix, strconv.Itoa(i)), elem, out); err != nil {
				return err
			}
		}
	case ty.IsObjectType() || ty.IsMapType():
		for it := v.ElementIterator(); it.Next(); {
			key, elem := it.Element()
			if err := flattenCty(JoinPath(prefix, key.AsString()), elem, out); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unsupported value type %s", ty.FriendlyName())
	}
	return nil
}
