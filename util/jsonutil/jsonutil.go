package jsonutil

import (
	"bytes"
	"encoding/json"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var comma = byte(',')
var colon = byte(':')

var jsonConfigValidationOn = jsoniter.ConfigCompatibleWithStandardLibrary

var jsonConfigValidationOff = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: false,
}.Froze()

// Unmarshal unmarshals a byte slice into the specified data structure
// without performing any validation on the data.
func Unmarshal(data []byte, v interface{}) error {
	return jsonConfigValidationOff.Unmarshal(data, v)
}

// UnmarshalValid validates and unmarshals a byte slice into the
// specified data structure, returning an error if validation fails.
func UnmarshalValid(data []byte, v interface{}) error {
	return jsonConfigValidationOn.Unmarshal(data, v)
}

// Marshal marshals a data structure into a byte slice without performing
// any validation on the data.
func Marshal(v interface{}) ([]byte, error) {
	return jsonConfigValidationOn.Marshal(v)
}

func findElementIndexes(extension []byte, elementNames ...string) (bool, int64, int64, error) {
	found := false
	buf := bytes.NewBuffer(extension)
	dec := json.NewDecoder(buf)
	found, startIndex, endIndex, err := findElement(dec, extension, elementNames)
	return found, startIndex, endIndex, err
}

func findElement(dec *json.Decoder, extension []byte, elementNames []string) (bool, int64, int64, error) {
	elementName := elementNames[0]
	var startIndex int64 = -1
	var i interface{}
	for {
		token, err := dec.Token()
		if err == io.EOF {
			// io.EOF is a successful end
			break
		}
		if err != nil {
			return false, -1, -1, err
		}
		if token == elementName {
			if len(elementNames) == 1 {
				err := dec.Decode(&i)
				if err != nil {
					return false, -1, -1, err
				}
				endIndex := dec.InputOffset()

				if dec.More() {
					//if there were other elements before
					if extension[startIndex] == comma {
						startIndex++
					}
					for {
						//structure has more elements, need to find index of comma
						if extension[endIndex] == comma {
							endIndex++
							break
						}
						endIndex++
					}
				}
				return true, startIndex, endIndex, nil
			}
			return findElement(dec, extension, elementNames[1:])
		}
		startIndex = dec.InputOffset()
	}
	return false, -1, -1, nil
}

// DropElement removes the named element from the json text, returning the
// remainder. Nested elements are addressed by passing the path in order.
func DropElement(extension []byte, elementNames ...string) ([]byte, error) {
	found, startIndex, endIndex, err := findElementIndexes(extension, elementNames...)
	if found {
		extension = append(extension[:startIndex], extension[endIndex:]...)
	}
	return extension, err
}

// FindElement returns the value of the named element if present.
func FindElement(extension []byte, elementNames ...string) (bool, []byte, error) {
	found, startIndex, endIndex, err := findElementIndexes(extension, elementNames...)
	if found && err == nil {
		element := extension[startIndex:endIndex]
		index := 0
		for {
			if index < len(element) && element[index] != colon {
				index++
			} else {
				index++
				break
			}
		}
		element = element[index:]
		return found, element, err
	}
	return found, nil, err
}
