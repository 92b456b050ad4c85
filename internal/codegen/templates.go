package codegen

// fileHeaderTemplate is rendered once per compiled server, ahead of any
// function bodies.
const fileHeaderTemplate = `"""Generated callable library for the {{.ServerName}} server.

Do not edit by hand: recompiled from {{.SourceHashHex}} on every
'mfp compile' run that detects a changed swagger source.
"""

from __future__ import annotations

import os
from typing import Any, Optional

import requests

_BASE_URL_ENV = "MFP_{{.EnvName}}_BASE_URL"
_AUTH_ENV = "MFP_{{.EnvName}}_AUTH"
_DEFAULT_BASE_URL = {{.BaseURL | printf "%q"}}


def _base_url() -> str:
    return os.environ.get(_BASE_URL_ENV, _DEFAULT_BASE_URL)


def _headers() -> dict[str, str]:
    token = os.environ.get(_AUTH_ENV, "")
    if not token:
        return {}
    return {"Authorization": token}

`

// functionTemplate is rendered once per endpoint. {{.PathExpr}} is the
// endpoint path with each declared {param} placeholder rewritten to that
// parameter's PySafeName, so the f-string refers to the function's own
// argument names (OpenAPI's {pet-id} becomes Python's {pet_id}).
const functionTemplate = `
def {{.OperationID}}({{.ParamList}}) -> Any:
    """{{.Summary}}

    Method: {{.Method}}
    Path: {{.Path}}
    """
    url = _base_url() + f{{.PathExpr | printf "%q"}}
    params: dict[str, Any] = {}
    headers = _headers()
{{range .QueryParams}}    if {{.PySafeName}} is not None:
        params[{{.Name | printf "%q"}}] = {{.PySafeName}}
{{end}}{{range .HeaderParams}}    if {{.PySafeName}} is not None:
        headers[{{.Name | printf "%q"}}] = {{.PySafeName}}
{{end}}{{if .HasBody}}    response = requests.request({{.Method | printf "%q"}}, url, params=params, headers=headers, json=body, timeout=30)
{{else}}    response = requests.request({{.Method | printf "%q"}}, url, params=params, headers=headers, timeout=30)
{{end}}    response.raise_for_status()
    if not response.content:
        return None
    return response.json()

`
