/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package acl

import (
	"github.com/smartlyhq/smartly-bridge/pkg/hub"
	"github.com/smartlyhq/smartly-bridge/pkg/models"
)

// BuildStructure assembles the floors -> areas -> devices -> entities tree
// for every allowed entity. Entities whose device has no area land in a
// synthetic "Unassigned" area; areas with no floor land under a synthetic
// "No Floor" floor; entities without a device attach to a virtual device.
// Every allowed entity appears exactly once.
func BuildStructure(reg hub.Registry) *models.Structure {
	s := &models.Structure{
		Floors:   []*models.StructureFloor{},
		Areas:    []*models.StructureArea{},
		Devices:  []*models.StructureDevice{},
		Entities: []models.EntityDescriptor{},
	}

	floorIndex := make(map[string]*models.StructureFloor)
	areaIndex := make(map[string]*models.StructureArea)
	deviceIndex := make(map[string]*models.StructureDevice)

	for _, entry := range AllowedEntities(reg) {
		domain := EntityDomain(entry.EntityID)

		deviceID := entry.DeviceID
		areaID := entry.AreaID
		floorID := ""

		var device *hub.DeviceEntry

		if deviceID != "" {
			if d, ok := reg.Device(deviceID); ok {
				device = d
				if areaID == "" {
					areaID = d.AreaID
				}
			}
		}

		var area *hub.AreaEntry

		if areaID != "" {
			if a, ok := reg.Area(areaID); ok {
				area = a
				floorID = a.FloorID
			}
		}

		floorKey := floorID
		if floorKey == "" {
			floorKey = models.UnassignedFloorID
		}

		areaKey := areaID
		if areaKey == "" {
			areaKey = models.UnassignedAreaID
		}

		deviceKey := deviceID
		if deviceKey == "" {
			deviceKey = models.VirtualDeviceID
		}

		floor := floorIndex[floorKey]
		if floor == nil {
			name := "No Floor"
			if f, ok := reg.Floor(floorID); floorID != "" && ok {
				name = f.Name
			}

			floor = &models.StructureFloor{ID: floorKey, Name: name, Areas: []*models.StructureArea{}}
			floorIndex[floorKey] = floor
			s.Floors = append(s.Floors, floor)
		}

		// Area keys are scoped by floor so an id never lands on two floors.
		areaNode := areaIndex[floorKey+"/"+areaKey]
		if areaNode == nil {
			name := "Unassigned"
			if area != nil {
				name = area.Name
			}

			areaNode = &models.StructureArea{ID: areaKey, Name: name, FloorID: floorKey, Devices: []*models.StructureDevice{}}
			areaIndex[floorKey+"/"+areaKey] = areaNode
			floor.Areas = append(floor.Areas, areaNode)
			s.Areas = append(s.Areas, areaNode)
		}

		deviceNode := deviceIndex[floorKey+"/"+areaKey+"/"+deviceKey]
		if deviceNode == nil {
			name := ""
			if device != nil {
				name = device.Name
			}

			deviceNode = &models.StructureDevice{ID: deviceKey, Name: name, AreaID: areaKey, Entities: []models.EntityDescriptor{}}
			deviceIndex[floorKey+"/"+areaKey+"/"+deviceKey] = deviceNode
			areaNode.Devices = append(areaNode.Devices, deviceNode)
			s.Devices = append(s.Devices, deviceNode)
		}

		descriptor := models.EntityDescriptor{
			EntityID: entry.EntityID,
			Domain:   domain,
			Name:     entry.DisplayName(),
			Icon:     ResolveIcon(entry, domain),
			DeviceID: deviceKey,
			AreaID:   areaKey,
			FloorID:  floorKey,
		}

		deviceNode.Entities = append(deviceNode.Entities, descriptor)
		s.Entities = append(s.Entities, descriptor)
	}

	return s
}
