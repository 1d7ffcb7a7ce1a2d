//go:build windows

// Package wmi provides the Windows WMI/registry implementation via COM/OLE.
package wmi

import (
	"context"
	"fmt"

	"github.com/go-ole/go-ole"
	"github.com/go-ole/go-ole/oleutil"
)

// withWbemService initializes COM, connects to a WMI namespace, and runs fn
// against the connected SWbemServices object.
func withWbemService(namespace string, fn func(service *ole.IDispatch) error) error {
	if err := ole.CoInitializeEx(0, ole.COINIT_MULTITHREADED); err != nil {
		oleErr, ok := err.(*ole.OleError)
		// S_FALSE means already initialized, which is fine
		if !ok || oleErr.Code() != 0x00000001 {
			return fmt.Errorf("COM initialization failed: %w", err)
		}
	}
	defer ole.CoUninitialize()

	unknown, err := oleutil.CreateObject("WbemScripting.SWbemLocator")
	if err != nil {
		return fmt.Errorf("failed to create WMI locator: %w", err)
	}
	defer unknown.Release()

	locator, err := unknown.QueryInterface(ole.IID_IDispatch)
	if err != nil {
		return fmt.Errorf("failed to get IDispatch: %w", err)
	}
	defer locator.Release()

	serviceRaw, err := oleutil.CallMethod(locator, "ConnectServer", ".", namespace)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", namespace, err)
	}
	service := serviceRaw.ToIDispatch()
	defer service.Release()

	return fn(service)
}

// queryWindows executes a WQL query using COM/OLE.
func queryWindows(ctx context.Context, namespace, query string) ([]QueryResult, error) {
	var results []QueryResult

	err := withWbemService(namespace, func(service *ole.IDispatch) error {
		resultRaw, err := oleutil.CallMethod(service, "ExecQuery", query)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		result := resultRaw.ToIDispatch()
		defer result.Release()

		countRaw, err := oleutil.GetProperty(result, "Count")
		if err != nil {
			return fmt.Errorf("failed to get count: %w", err)
		}
		count := int(countRaw.Val)

		results = make([]QueryResult, 0, count)
		for i := 0; i < count; i++ {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			itemRaw, err := oleutil.CallMethod(result, "ItemIndex", i)
			if err != nil {
				continue
			}
			item := itemRaw.ToIDispatch()

			qr, err := readProperties(item)
			item.Release()
			if err != nil {
				continue
			}
			results = append(results, qr)
		}
		return nil
	})

	return results, err
}

// readProperties builds a QueryResult map from a WMI object's Properties_.
func readProperties(item *ole.IDispatch) (QueryResult, error) {
	propsRaw, err := oleutil.GetProperty(item, "Properties_")
	if err != nil {
		return nil, err
	}
	props := propsRaw.ToIDispatch()
	defer props.Release()

	propCountRaw, err := oleutil.GetProperty(props, "Count")
	if err != nil {
		return nil, err
	}
	propCount := int(propCountRaw.Val)

	qr := make(QueryResult)
	for j := 0; j < propCount; j++ {
		propRaw, err := oleutil.CallMethod(props, "ItemIndex", j)
		if err != nil {
			continue
		}
		prop := propRaw.ToIDispatch()

		nameRaw, err := oleutil.GetProperty(prop, "Name")
		if err != nil {
			prop.Release()
			continue
		}
		name := nameRaw.ToString()

		valRaw, err := oleutil.GetProperty(prop, "Value")
		if err != nil {
			prop.Release()
			continue
		}

		var val interface{}
		switch valRaw.VT {
		case ole.VT_NULL, ole.VT_EMPTY:
			val = nil
		case ole.VT_BOOL:
			val = valRaw.Val != 0
		case ole.VT_I4, ole.VT_INT:
			val = int32(valRaw.Val)
		case ole.VT_UI4, ole.VT_UINT:
			val = uint32(valRaw.Val)
		case ole.VT_BSTR:
			val = valRaw.ToString()
		default:
			val = valRaw.Value()
		}

		qr[name] = val
		prop.Release()
	}

	return qr, nil
}

// withStdRegProv connects to root\default and hands the StdRegProv class to fn.
func withStdRegProv(fn func(reg *ole.IDispatch) error) error {
	return withWbemService("root\\default", func(service *ole.IDispatch) error {
		regRaw, err := oleutil.CallMethod(service, "Get", "StdRegProv")
		if err != nil {
			return fmt.Errorf("failed to get StdRegProv: %w", err)
		}
		reg := regRaw.ToIDispatch()
		defer reg.Release()
		return fn(reg)
	})
}

// getRegistryStringWindows reads a string registry value using StdRegProv.
func getRegistryStringWindows(ctx context.Context, hive uint32, subKey, valueName string) (string, error) {
	var value string
	err := withStdRegProv(func(reg *ole.IDispatch) error {
		outParams, err := oleutil.CallMethod(reg, "GetStringValue", hive, subKey, valueName)
		if err != nil {
			return fmt.Errorf("GetStringValue failed: %w", err)
		}
		result := outParams.ToIDispatch()
		defer result.Release()

		valueRaw, err := oleutil.GetProperty(result, "sValue")
		if err != nil {
			return fmt.Errorf("failed to get sValue: %w", err)
		}
		if valueRaw.VT == ole.VT_NULL || valueRaw.VT == ole.VT_EMPTY {
			return fmt.Errorf("value %s not set under %s", valueName, subKey)
		}
		value = valueRaw.ToString()
		return nil
	})
	return value, err
}

// enumSubKeys lists the immediate subkeys of a registry key via StdRegProv.
func enumSubKeys(hive uint32, subKey string) ([]string, error) {
	var names []string
	err := withStdRegProv(func(reg *ole.IDispatch) error {
		outParams, err := oleutil.CallMethod(reg, "EnumKey", hive, subKey)
		if err != nil {
			return fmt.Errorf("EnumKey failed: %w", err)
		}
		result := outParams.ToIDispatch()
		defer result.Release()

		namesRaw, err := oleutil.GetProperty(result, "sNames")
		if err != nil {
			return fmt.Errorf("failed to get sNames: %w", err)
		}
		if namesRaw.VT == ole.VT_NULL || namesRaw.VT == ole.VT_EMPTY {
			return nil // key exists but has no subkeys
		}

		arr := namesRaw.ToArray()
		if arr == nil {
			return nil
		}
		for _, v := range arr.ToValueArray() {
			if s, ok := v.(string); ok {
				names = append(names, s)
			}
		}
		return nil
	})
	return names, err
}

// installedProductsWindows merges the native and WOW6432Node uninstall hives
// into one candidate set.
func installedProductsWindows(ctx context.Context) ([]Product, error) {
	hives := []struct {
		label string
		key   string
	}{
		{"native", uninstallKeyNative},
		{"wow6432", uninstallKeyWow64},
	}

	var products []Product
	var lastErr error

	for _, h := range hives {
		select {
		case <-ctx.Done():
			return products, ctx.Err()
		default:
		}

		subkeys, err := enumSubKeys(HKEY_LOCAL_MACHINE, h.key)
		if err != nil {
			// The WOW6432Node hive is absent on 32-bit hosts
			lastErr = err
			continue
		}

		for _, name := range subkeys {
			entryKey := h.key + `\` + name
			display, err := getRegistryStringWindows(ctx, HKEY_LOCAL_MACHINE, entryKey, "DisplayName")
			if err != nil || display == "" {
				continue
			}
			version, _ := getRegistryStringWindows(ctx, HKEY_LOCAL_MACHINE, entryKey, "DisplayVersion")
			products = append(products, Product{
				DisplayName:    display,
				DisplayVersion: version,
				Hive:           h.label,
			})
		}
	}

	if len(products) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return products, nil
}
