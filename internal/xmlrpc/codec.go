// ABOUTME: XML-RPC envelope codec with recursive typed value encoding
// ABOUTME: Implements methodCall, methodResponse, and fault wire shapes

package xmlrpc

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/harper/rpcbridge/internal/rpc"
)

const (
	contentType = "text/xml"
	xmlHeader   = `<?xml version="1.0" encoding="UTF-8"?>`

	defaultFaultCode   = rpc.CodeInternalError
	defaultFaultString = "Internal error"
)

// Codec implements the XML envelope protocol. The XML wire has no request id;
// decoded requests carry a nil ID and the transport is expected to always
// answer.
type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func (c *Codec) ContentType() string {
	return contentType
}

// EncodeRequest serializes methodCall{methodName, params{param{value}*}}.
// List params become one param per element, a map becomes a single struct
// param, and a scalar becomes a single param.
func (c *Codec) EncodeRequest(req rpc.Request) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<methodCall><methodName>")
	if err := xml.EscapeText(&buf, []byte(req.Method)); err != nil {
		return nil, err
	}
	buf.WriteString("</methodName><params>")
	for _, param := range requestParams(req.Params) {
		buf.WriteString("<param>")
		if err := encodeValue(&buf, param); err != nil {
			return nil, err
		}
		buf.WriteString("</param>")
	}
	buf.WriteString("</params></methodCall>")
	return buf.Bytes(), nil
}

func requestParams(params *rpc.Value) []rpc.Value {
	if params == nil {
		return nil
	}
	if params.Kind() == rpc.KindList {
		return params.Items()
	}
	return []rpc.Value{*params}
}

// EncodeResponse serializes a success methodResponse or a fault carrying the
// faultCode/faultString struct.
func (c *Codec) EncodeResponse(resp rpc.Response) ([]byte, error) {
	if resp.Result != nil && resp.Error != nil {
		return nil, fmt.Errorf("response has both result and error")
	}

	var buf bytes.Buffer
	buf.WriteString(xmlHeader)
	buf.WriteString("<methodResponse>")
	if resp.Error != nil {
		fault := rpc.NewMap().
			Set("faultCode", rpc.Int(int64(resp.Error.Code))).
			Set("faultString", rpc.String(resp.Error.Message))
		buf.WriteString("<fault>")
		if err := encodeValue(&buf, fault); err != nil {
			return nil, err
		}
		buf.WriteString("</fault>")
	} else {
		buf.WriteString("<params>")
		if resp.Result != nil {
			buf.WriteString("<param>")
			if err := encodeValue(&buf, *resp.Result); err != nil {
				return nil, err
			}
			buf.WriteString("</param>")
		}
		buf.WriteString("</params>")
	}
	buf.WriteString("</methodResponse>")
	return buf.Bytes(), nil
}

// encodeValue writes one <value> element, recursing by tag. Booleans use the
// literal 1/0 and doubles plain decimal notation, so decode reproduces the
// same tag and content.
func encodeValue(buf *bytes.Buffer, v rpc.Value) error {
	buf.WriteString("<value>")
	switch v.Kind() {
	case rpc.KindNull:
		buf.WriteString("<string></string>")
	case rpc.KindBool:
		if v.Bool() {
			buf.WriteString("<boolean>1</boolean>")
		} else {
			buf.WriteString("<boolean>0</boolean>")
		}
	case rpc.KindInt:
		buf.WriteString("<i4>")
		buf.WriteString(strconv.FormatInt(v.Int(), 10))
		buf.WriteString("</i4>")
	case rpc.KindFloat:
		buf.WriteString("<double>")
		buf.WriteString(strconv.FormatFloat(v.Float(), 'f', -1, 64))
		buf.WriteString("</double>")
	case rpc.KindString:
		buf.WriteString("<string>")
		if err := xml.EscapeText(buf, []byte(v.Text())); err != nil {
			return err
		}
		buf.WriteString("</string>")
	case rpc.KindList:
		buf.WriteString("<array><data>")
		for _, item := range v.Items() {
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteString("</data></array>")
	case rpc.KindMap:
		buf.WriteString("<struct>")
		for _, key := range v.Keys() {
			member, _ := v.Get(key)
			buf.WriteString("<member><name>")
			if err := xml.EscapeText(buf, []byte(key)); err != nil {
				return err
			}
			buf.WriteString("</name>")
			if err := encodeValue(buf, member); err != nil {
				return err
			}
			buf.WriteString("</member>")
		}
		buf.WriteString("</struct>")
	default:
		return fmt.Errorf("unsupported value kind %v", v.Kind())
	}
	buf.WriteString("</value>")
	return nil
}

// DecodeRequest parses a methodCall document. Unparseable XML is a
// ParseError wrapping the parser error, tagged with the request context.
func (c *Codec) DecodeRequest(data []byte) (rpc.Request, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStartElement(dec)
	if err != nil {
		return rpc.Request{}, rpc.NewParseError("request", err)
	}
	if root.Name.Local != "methodCall" {
		return rpc.Request{}, rpc.NewParseError("request", fmt.Errorf("expected methodCall, got %s", root.Name.Local))
	}

	var method string
	var params []rpc.Value
	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Request{}, rpc.NewParseError("request", err)
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "methodCall" {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "methodName":
			text, err := elementText(dec, start)
			if err != nil {
				return rpc.Request{}, rpc.NewParseError("request", err)
			}
			method = strings.TrimSpace(text)
		case "params":
			params, err = decodeParams(dec)
			if err != nil {
				return rpc.Request{}, rpc.NewParseError("request", err)
			}
		default:
			if err := dec.Skip(); err != nil {
				return rpc.Request{}, rpc.NewParseError("request", err)
			}
		}
	}

	if method == "" {
		return rpc.Request{}, rpc.NewInvalidRequest("methodName is required")
	}

	req := rpc.Request{Version: rpc.Version, Method: method}
	req.Params = wrapParams(params)
	return req, nil
}

// wrapParams keeps the neutral shape symmetric with encoding: a single
// struct param decodes as the map itself, anything else as an ordered list.
// A one-element list of scalars stays a list.
func wrapParams(params []rpc.Value) *rpc.Value {
	if params == nil {
		return nil
	}
	if len(params) == 1 && params[0].Kind() == rpc.KindMap {
		v := params[0]
		return &v
	}
	v := rpc.List(params...)
	return &v
}

// DecodeResponse parses a methodResponse document, success or fault. A fault
// struct missing the expected members defaults to the internal error code
// and message.
func (c *Codec) DecodeResponse(data []byte) (rpc.Response, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))

	root, err := nextStartElement(dec)
	if err != nil {
		return rpc.Response{}, rpc.NewParseError("response", err)
	}
	if root.Name.Local != "methodResponse" {
		return rpc.Response{}, rpc.NewParseError("response", fmt.Errorf("expected methodResponse, got %s", root.Name.Local))
	}

	resp := rpc.Response{Version: rpc.Version}
	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Response{}, rpc.NewParseError("response", err)
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "methodResponse" {
			break
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "params":
			params, err := decodeParams(dec)
			if err != nil {
				return rpc.Response{}, rpc.NewParseError("response", err)
			}
			if len(params) > 0 {
				result := params[0]
				resp.Result = &result
			}
		case "fault":
			faultValue, err := decodeFirstValue(dec, "fault")
			if err != nil {
				return rpc.Response{}, rpc.NewParseError("response", err)
			}
			resp.Error = faultError(faultValue)
		default:
			if err := dec.Skip(); err != nil {
				return rpc.Response{}, rpc.NewParseError("response", err)
			}
		}
	}

	return resp, nil
}

// faultError extracts faultCode/faultString, falling back to the default
// internal error pair when the struct lacks the expected members.
func faultError(v rpc.Value) *rpc.ErrorObject {
	obj := &rpc.ErrorObject{Code: defaultFaultCode, Message: defaultFaultString}
	if v.Kind() != rpc.KindMap {
		return obj
	}
	if code, ok := v.Get("faultCode"); ok && code.Kind() == rpc.KindInt {
		obj.Code = int(code.Int())
	}
	if msg, ok := v.Get("faultString"); ok && msg.Kind() == rpc.KindString {
		obj.Message = msg.Text()
	}
	return obj
}

// decodeParams consumes a <params> element, returning one value per <param>.
func decodeParams(dec *xml.Decoder) ([]rpc.Value, error) {
	params := []rpc.Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == "params" {
			return params, nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "param" {
			if err := dec.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		v, err := decodeFirstValue(dec, "param")
		if err != nil {
			return nil, err
		}
		params = append(params, v)
	}
}

// decodeFirstValue consumes tokens until the first <value> child, decodes
// it, then consumes through the enclosing element's end tag.
func decodeFirstValue(dec *xml.Decoder, enclosing string) (rpc.Value, error) {
	var result rpc.Value
	found := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Value{}, err
		}
		if end, ok := tok.(xml.EndElement); ok && end.Name.Local == enclosing {
			if !found {
				return rpc.Value{}, fmt.Errorf("%s has no value element", enclosing)
			}
			return result, nil
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "value" || found {
			if err := dec.Skip(); err != nil {
				return rpc.Value{}, err
			}
			continue
		}
		result, err = decodeValue(dec)
		if err != nil {
			return rpc.Value{}, err
		}
		found = true
	}
}

// decodeValue decodes one <value> element body, dispatching on the child
// element name. A bare text node with no type element decodes as a string.
func decodeValue(dec *xml.Decoder) (rpc.Value, error) {
	var text strings.Builder
	var typed *rpc.Value

	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Value{}, err
		}
		switch t := tok.(type) {
		case xml.CharData:
			text.Write(t)
		case xml.StartElement:
			if typed != nil {
				return rpc.Value{}, fmt.Errorf("value has more than one type element")
			}
			v, err := decodeTypedElement(dec, t)
			if err != nil {
				return rpc.Value{}, err
			}
			typed = &v
		case xml.EndElement:
			if t.Name.Local != "value" {
				return rpc.Value{}, fmt.Errorf("unexpected end element %s", t.Name.Local)
			}
			if typed != nil {
				return *typed, nil
			}
			return rpc.String(text.String()), nil
		}
	}
}

func decodeTypedElement(dec *xml.Decoder, start xml.StartElement) (rpc.Value, error) {
	switch start.Name.Local {
	case "i4", "int":
		text, err := elementText(dec, start)
		if err != nil {
			return rpc.Value{}, err
		}
		i, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return rpc.Value{}, fmt.Errorf("invalid %s value: %w", start.Name.Local, err)
		}
		return rpc.Int(i), nil
	case "double":
		text, err := elementText(dec, start)
		if err != nil {
			return rpc.Value{}, err
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return rpc.Value{}, fmt.Errorf("invalid double value: %w", err)
		}
		return rpc.Float(f), nil
	case "boolean":
		text, err := elementText(dec, start)
		if err != nil {
			return rpc.Value{}, err
		}
		switch strings.TrimSpace(text) {
		case "1":
			return rpc.Bool(true), nil
		case "0":
			return rpc.Bool(false), nil
		}
		return rpc.Value{}, fmt.Errorf("invalid boolean value %q", strings.TrimSpace(text))
	case "string":
		text, err := elementText(dec, start)
		if err != nil {
			return rpc.Value{}, err
		}
		return rpc.String(text), nil
	case "array":
		return decodeArray(dec)
	case "struct":
		return decodeStruct(dec)
	}
	return rpc.Value{}, fmt.Errorf("unknown value type element %s", start.Name.Local)
}

// decodeArray consumes <array><data><value>*</data></array>. A single
// element still decodes as a one-element list; shape never collapses.
func decodeArray(dec *xml.Decoder) (rpc.Value, error) {
	items := []rpc.Value{}
	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Value{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "data":
				// descend; values are direct children
			case "value":
				item, err := decodeValue(dec)
				if err != nil {
					return rpc.Value{}, err
				}
				items = append(items, item)
			default:
				if err := dec.Skip(); err != nil {
					return rpc.Value{}, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "array" {
				return rpc.List(items...), nil
			}
		}
	}
}

// decodeStruct consumes <struct><member><name>..</name><value>..</value></member>*</struct>,
// preserving member order.
func decodeStruct(dec *xml.Decoder) (rpc.Value, error) {
	m := rpc.NewMap()
	for {
		tok, err := dec.Token()
		if err != nil {
			return rpc.Value{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "member" {
				if err := dec.Skip(); err != nil {
					return rpc.Value{}, err
				}
				continue
			}
			name, value, err := decodeMember(dec)
			if err != nil {
				return rpc.Value{}, err
			}
			m.Set(name, value)
		case xml.EndElement:
			if t.Name.Local == "struct" {
				return m, nil
			}
		}
	}
}

func decodeMember(dec *xml.Decoder) (string, rpc.Value, error) {
	var name string
	var value rpc.Value
	haveValue := false
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", rpc.Value{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "name":
				text, err := elementText(dec, t)
				if err != nil {
					return "", rpc.Value{}, err
				}
				name = text
			case "value":
				v, err := decodeValue(dec)
				if err != nil {
					return "", rpc.Value{}, err
				}
				value = v
				haveValue = true
			default:
				if err := dec.Skip(); err != nil {
					return "", rpc.Value{}, err
				}
			}
		case xml.EndElement:
			if t.Name.Local == "member" {
				if !haveValue {
					return "", rpc.Value{}, fmt.Errorf("struct member %q has no value", name)
				}
				return name, value, nil
			}
		}
	}
}

// elementText collects character data until the element's end tag, rejecting
// nested elements.
func elementText(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var sb strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.CharData:
			sb.Write(t)
		case xml.StartElement:
			return "", fmt.Errorf("unexpected element %s inside %s", t.Name.Local, start.Name.Local)
		case xml.EndElement:
			if t.Name.Local == start.Name.Local {
				return sb.String(), nil
			}
		}
	}
}

func nextStartElement(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			if err == io.EOF {
				return xml.StartElement{}, fmt.Errorf("document has no root element")
			}
			return xml.StartElement{}, err
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start, nil
		}
	}
}
